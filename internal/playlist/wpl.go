package playlist

import (
	"encoding/xml"
	"fmt"
)

// wpl is the Windows Media Player playlist document.
type wpl struct {
	XMLName xml.Name `xml:"smil"`
	Head    struct {
		Title string `xml:"title"`
	} `xml:"head"`
	Body struct {
		Seq struct {
			Media []struct {
				Src string `xml:"src,attr"`
			} `xml:"media"`
		} `xml:"seq"`
	} `xml:"body"`
}

func parseWPL(data []byte) (title string, srcs []string, err error) {
	var doc wpl
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("invalid WPL: %w", err)
	}
	for _, m := range doc.Body.Seq.Media {
		if m.Src != "" {
			srcs = append(srcs, m.Src)
		}
	}
	return doc.Head.Title, srcs, nil
}
