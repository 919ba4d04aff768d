package client

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danmuck/edgekv/internal/protocol"
)

// Render writes v in the interactive display format, two spaces per depth.
func Render(w io.Writer, v protocol.Value) error {
	return render(w, v, 0)
}

func render(w io.Writer, v protocol.Value, depth int) error {
	pad := strings.Repeat("  ", depth)
	var err error
	switch tv := v.(type) {
	case nil, protocol.Nil:
		_, err = fmt.Fprintf(w, "%s(nil)\n", pad)
	case protocol.Error:
		_, err = fmt.Fprintf(w, "%s[ERROR %d]: %s\n", pad, tv.Code, tv.Message)
	case protocol.String:
		_, err = fmt.Fprintf(w, "%s%s\n", pad, []byte(tv))
	case protocol.Integer:
		_, err = fmt.Fprintf(w, "%s%d\n", pad, int64(tv))
	case protocol.Double:
		_, err = fmt.Fprintf(w, "%s%s\n", pad, strconv.FormatFloat(float64(tv), 'g', -1, 64))
	case protocol.Array:
		if _, err = fmt.Fprintf(w, "%sArray (%d items):\n", pad, len(tv)); err != nil {
			return err
		}
		for _, item := range tv {
			if err = render(w, item, depth+1); err != nil {
				return err
			}
		}
	default:
		_, err = fmt.Fprintf(w, "%s[Unknown tag: %d]\n", pad, v.Tag())
	}
	return err
}
