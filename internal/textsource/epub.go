package textsource

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	epubContainerPath = "META-INF/container.xml"
	xhtmlMediaType    = "application/xhtml+xml"
)

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Items []epubItem `xml:"manifest>item"`
}

type epubItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// EPUBText extracts the visible text of every XHTML document in the book's
// manifest, in manifest order, each followed by a newline.
func EPUBText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var container epubContainer
	if err := decodeXML(files, epubContainerPath, &container); err != nil {
		return "", err
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return "", errors.New("epub: container has no rootfile")
	}
	opfPath := container.Rootfiles[0].FullPath

	var pkg epubPackage
	if err := decodeXML(files, opfPath, &pkg); err != nil {
		return "", err
	}

	base := path.Dir(opfPath)
	var sb strings.Builder
	for _, item := range pkg.Items {
		if item.MediaType != xhtmlMediaType {
			continue
		}
		name := path.Clean(path.Join(base, item.Href))
		f, ok := files[name]
		if !ok {
			return "", fmt.Errorf("epub: manifest item %q not found at %s", item.ID, name)
		}
		text, err := documentText(f)
		if err != nil {
			return "", fmt.Errorf("epub: item %q: %w", item.ID, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func documentText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return bodyText(rc)
}

func decodeXML(files map[string]*zip.File, name string, v any) error {
	f, ok := files[name]
	if !ok {
		return fmt.Errorf("epub: missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("epub: open %s: %w", name, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxBodyBytes))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("epub: parse %s: %w", name, err)
	}
	return nil
}
