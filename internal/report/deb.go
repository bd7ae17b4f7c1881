package report

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Errors returned when a .deb cannot be read.
var (
	ErrNoControl          = errors.New("no control archive")
	ErrNoControlFile      = errors.New("control archive has no control file")
	ErrUnknownCompression = errors.New("unknown control archive compression")
)

// maxControlSize bounds the control file read into memory.
const maxControlSize = 1 << 20

// ReadDeb returns the control metadata embedded in the Debian package at
// path.
func ReadDeb(path string) (types.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Metadata{}, err
	}
	defer f.Close()

	control, err := controlFile(f)
	if err != nil {
		return types.Metadata{}, err
	}
	return parseControl(control)
}

// controlFile walks the ar members of a .deb and returns the contents of the
// control file inside control.tar*.
func controlFile(r io.Reader) ([]byte, error) {
	arr := ar.NewReader(r)
	for {
		hdr, err := arr.Next()
		if err == io.EOF {
			return nil, ErrNoControl
		}
		if err != nil {
			return nil, fmt.Errorf("read ar archive: %w", err)
		}

		name := strings.TrimSuffix(strings.TrimSpace(hdr.Name), "/")
		if !strings.HasPrefix(name, "control.tar") {
			continue
		}

		tr, closer, err := decompress(name, arr)
		if err != nil {
			return nil, err
		}
		defer closer()
		return findControl(tr)
	}
}

// decompress wraps the control member in the reader its suffix calls for.
func decompress(name string, r io.Reader) (io.Reader, func(), error) {
	nop := func() {}
	switch name {
	case "control.tar":
		return r, nop, nil
	case "control.tar.gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		return zr, func() { zr.Close() }, nil
	case "control.tar.xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		return xr, nop, nil
	case "control.tar.zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownCompression, name)
	}
}

func findControl(r io.Reader) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, ErrNoControlFile
		}
		if err != nil {
			return nil, fmt.Errorf("read control archive: %w", err)
		}
		if strings.TrimPrefix(hdr.Name, "./") != "control" {
			continue
		}
		return io.ReadAll(io.LimitReader(tr, maxControlSize))
	}
}

// parseControl reads a single control stanza. Continuation lines are folded
// into their field's value in Fields; Description holds the synopsis only.
func parseControl(data []byte) (types.Metadata, error) {
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, bytes.TrimRight(data, "\n")...)
	buf = append(buf, '\n', '\n')

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(buf)))
	hdr, err := tp.ReadMIMEHeader()
	if err != nil {
		return types.Metadata{}, fmt.Errorf("parse control: %w", err)
	}

	md := types.Metadata{
		Name:         hdr.Get("Package"),
		Version:      hdr.Get("Version"),
		Architecture: hdr.Get("Architecture"),
		Maintainer:   hdr.Get("Maintainer"),
		Description:  synopsis(data),
		Fields:       make(map[string]string, len(hdr)),
	}
	for k := range hdr {
		md.Fields[k] = hdr.Get(k)
	}
	return md, nil
}

// synopsis returns the first line of the Description field, before any
// continuation lines.
func synopsis(data []byte) string {
	for line := range bytes.Lines(data) {
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || len(line) == 0 || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		if strings.EqualFold(string(bytes.TrimSpace(name)), "Description") {
			return string(bytes.TrimSpace(value))
		}
	}
	return ""
}
