package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gallery/internal/database"
	"gallery/internal/eventloop"
	"gallery/internal/logging"
	"gallery/internal/medialist"
	"gallery/internal/mediatypes"
	"gallery/internal/playlist"
	"gallery/internal/source"
	"gallery/internal/startup"
)

const dateLayout = "2006-01-02"

type listOptions struct {
	scope     string
	mediaType string
	sortField string
	sortOrder string
	folder    string
	tag       string
	place     string
	from      string
	to        string
	ids       []int64
	index     int
	at        string
	playlist  string
	asJSON    bool
}

// listOutput is the --json document.
type listOutput struct {
	Filter  medialist.Filter   `json:"filter"`
	Window  medialist.Snapshot `json:"window"`
	Entries []medialist.Entry  `json:"entries"`
	Warning string             `json:"warning,omitempty"`
}

func newListCmd(flags *globalFlags) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list [path...]",
		Short: "Load a media list and print it",
		Long: `list loads a collection the same way a session does, waits for the
background loader to finish and prints every entry in rank order.

Paths given as arguments, or read from --playlist, are used by the file
scope.`,
		Example: `  gallery list --scope folder --folder /media/2024
  gallery list --scope tag --tag holiday --sort taken --order desc
  gallery list --scope file a.jpg b.mp4 --json
  gallery list --playlist holiday.wpl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if !flags.debug {
				logging.SetLevel(logging.LevelWarn)
			}

			if opts.playlist != "" {
				p, err := playlist.Load(opts.playlist, cfg.MediaDir)
				if err != nil {
					return err
				}
				if n := p.Missing(); n > 0 {
					logging.Warn("%d of %d playlist entries not found", n, len(p.Items))
				}
				opts.scope = medialist.ScopeFile.String()
				args = append(p.Paths(), args...)
			}

			f, err := opts.filter(args, cmd.Flags().Changed("index"))
			if err != nil {
				return err
			}
			return runList(cmd.Context(), cfg, f, cmd.OutOrStdout(), opts.asJSON)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&opts.scope, "scope", "all", "Collection scope: all, favorites, tag, folder, hidden-folder, place, timeline, file, directory, selected")
	fl.StringVar(&opts.mediaType, "media-type", "all", "Restrict to all, images or videos")
	fl.StringVar(&opts.sortField, "sort", "", "Sort by name, date, taken or size")
	fl.StringVar(&opts.sortOrder, "order", "", "Sort order, asc or desc")
	fl.StringVar(&opts.folder, "folder", "", "Folder for the folder, hidden-folder and directory scopes")
	fl.StringVar(&opts.tag, "tag", "", "Tag for the tag scope")
	fl.StringVar(&opts.place, "place", "", "Place for the place scope")
	fl.StringVar(&opts.from, "from", "", "Timeline start date (YYYY-MM-DD)")
	fl.StringVar(&opts.to, "to", "", "Timeline end date (YYYY-MM-DD)")
	fl.Int64SliceVar(&opts.ids, "ids", nil, "Item IDs for the selected scope")
	fl.IntVar(&opts.index, "index", 0, "Open the list at this rank")
	fl.StringVar(&opts.at, "at", "", "Open the list at this path or filename")
	fl.StringVar(&opts.playlist, "playlist", "", "Open a .wpl or .m3u playlist as a file scope list")
	fl.BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

func (o *listOptions) filter(paths []string, hasIndex bool) (medialist.Filter, error) {
	scope, err := medialist.ParseScope(o.scope)
	if err != nil {
		return medialist.Filter{}, err
	}

	f := medialist.Filter{
		Scope:       scope,
		Sort:        medialist.Sort{Field: mediatypes.SortField(o.sortField), Order: mediatypes.SortOrder(o.sortOrder)},
		TargetPath:  o.at,
		SelectedIDs: o.ids,
		Folder:      o.folder,
		Tag:         o.tag,
		Place:       o.place,
	}
	if err := f.MediaType.UnmarshalText([]byte(o.mediaType)); err != nil {
		return medialist.Filter{}, err
	}
	if hasIndex {
		index := o.index
		f.TargetIndex = &index
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return medialist.Filter{}, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		f.Paths = append(f.Paths, abs)
	}
	if f.Folder != "" {
		if f.Folder, err = filepath.Abs(f.Folder); err != nil {
			return medialist.Filter{}, fmt.Errorf("failed to resolve %s: %w", o.folder, err)
		}
	}
	if f.From, err = parseDate("from", o.from); err != nil {
		return medialist.Filter{}, err
	}
	if f.To, err = parseDate("to", o.to); err != nil {
		return medialist.Filter{}, err
	}
	if !f.To.IsZero() {
		// Inclusive end date.
		f.To = f.To.Add(24*time.Hour - time.Nanosecond)
	}

	return f, f.Validate()
}

func parseDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s %q is not a %s date", medialist.ErrInvalidFilter, name, value, dateLayout)
	}
	return t, nil
}

func runList(ctx context.Context, cfg *startup.Config, f medialist.Filter, out io.Writer, asJSON bool) error {
	if err := os.MkdirAll(cfg.DatabaseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.New(ctx, filepath.Join(cfg.DatabaseDir, startup.DatabaseFile), nil)
	if err != nil {
		return err
	}
	defer db.Close()

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()
	loop := eventloop.New()
	go func() { _ = loop.Run(loopCtx) }()

	engine, err := medialist.NewEngine(
		source.NewRouter(db, source.NewDirectory(db)),
		loop,
		medialist.Config{WindowSize: cfg.WindowSize, Seed: cfg.ShuffleSeed},
	)
	if err != nil {
		return err
	}

	var (
		loader  *medialist.Loader
		loadErr error
	)
	if err := loop.Do(ctx, func() {
		_, loadErr = engine.Load(ctx, f)
		loader = engine.Loader()
	}); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}

	result := listOutput{Filter: f}
	if loader != nil {
		if err := loader.Wait(ctx); err != nil {
			return err
		}
		if err := loader.Err(); err != nil {
			result.Warning = err.Error()
		}
	}

	if err := loop.Do(ctx, func() {
		result.Window = engine.List().Snapshot()
		result.Entries = engine.List().Entries()
		engine.Close()
	}); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printEntries(out, result)
}

func printEntries(out io.Writer, result listOutput) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tID\tKIND\tPATH")
	for _, e := range result.Entries {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.Index, e.ID, e.Kind, e.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d of %d entries loaded", result.Window.Loaded, result.Window.Total)
	if cur := result.Window.Current; cur != nil {
		fmt.Fprintf(out, ", current %d (%s)", cur.Index, cur.Filename())
	}
	fmt.Fprintln(out)
	if result.Warning != "" {
		fmt.Fprintf(out, "warning: %s\n", result.Warning)
	}
	return nil
}
