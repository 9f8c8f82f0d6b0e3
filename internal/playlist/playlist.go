package playlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gallery/internal/medialist"
)

// ErrUnsupported is returned for playlist files of an unknown format.
var ErrUnsupported = errors.New("unsupported playlist format")

// Playlist is an ordered list of media files read from a playlist file.
type Playlist struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Items []Item `json:"items"`
}

// Item is one playlist entry.
type Item struct {
	// Path is the resolved absolute path.
	Path string `json:"path"`
	// Src is the entry as written in the playlist.
	Src    string `json:"src"`
	Exists bool   `json:"exists"`
}

// Load reads a .wpl, .m3u or .m3u8 playlist. Relative entries are resolved
// against the playlist's directory first and then, by file name, against
// mediaDir. Windows separators are accepted.
func Load(path, mediaDir string) (*Playlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var title string
	var srcs []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wpl":
		title, srcs, err = parseWPL(data)
	case ".m3u", ".m3u8":
		srcs = parseM3U(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	p := &Playlist{Name: title, Path: path}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	dir := filepath.Dir(path)
	for _, src := range srcs {
		p.Items = append(p.Items, resolve(src, dir, mediaDir))
	}
	return p, nil
}

func resolve(src, playlistDir, mediaDir string) Item {
	clean := filepath.FromSlash(strings.ReplaceAll(src, `\`, "/"))
	item := Item{Src: src}

	candidates := []string{}
	if filepath.IsAbs(clean) {
		candidates = append(candidates, clean)
	} else {
		candidates = append(candidates, filepath.Join(playlistDir, clean))
	}
	if mediaDir != "" {
		candidates = append(candidates, filepath.Join(mediaDir, filepath.Base(clean)))
	}

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			item.Path, item.Exists = c, true
			return item
		}
	}
	item.Path = candidates[0]
	return item
}

func parseM3U(data []byte) []string {
	var srcs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		srcs = append(srcs, line)
	}
	return srcs
}

// Paths returns the resolved path of every item in playlist order.
func (p *Playlist) Paths() []string {
	paths := make([]string, len(p.Items))
	for i, item := range p.Items {
		paths[i] = item.Path
	}
	return paths
}

// Missing counts the items that could not be found.
func (p *Playlist) Missing() int {
	n := 0
	for _, item := range p.Items {
		if !item.Exists {
			n++
		}
	}
	return n
}

// Filter returns a file scope filter over the playlist's entries.
func (p *Playlist) Filter() medialist.Filter {
	return medialist.Filter{Scope: medialist.ScopeFile, Paths: p.Paths()}
}
