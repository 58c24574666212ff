package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/pretty"

	"github.com/SmitUplenchwar2687/Tapedeck/pkg/client"
)

// render returns e as raw HTTP text. With prettyJSON, JSON bodies are
// reindented; the recorded bytes are otherwise shown as is.
func render(e client.Entry, prettyJSON bool) string {
	if prettyJSON {
		e.RequestBody = prettyBody(e.RequestHeaders, e.RequestBody)
		e.ResponseBody = prettyBody(e.ResponseHeaders, e.ResponseBody)
	}
	return e.HTTPMessage()
}

func prettyBody(h http.Header, body string) string {
	if body == "" || !isJSON(h.Get("Content-Type")) || !json.Valid([]byte(body)) {
		return body
	}
	return string(pretty.Pretty([]byte(body)))
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// printEntries writes entries as HTTP messages. Positions are shown when
// they are known to match the server's indexes.
func printEntries(out io.Writer, entries []client.Entry, offset int, positions, prettyJSON bool) {
	var total uint64
	for i, e := range entries {
		if positions {
			fmt.Fprintf(out, "Request %d (%s):\n", offset+i, e.ID)
		} else {
			fmt.Fprintf(out, "Request %s:\n", e.ID)
		}
		fmt.Fprint(out, render(e, prettyJSON))
		fmt.Fprintln(out)
		total += uint64(len(e.RequestBody) + len(e.ResponseBody))
	}
	if len(entries) > 0 {
		fmt.Fprintf(out, "%d exchanges, %s of bodies\n", len(entries), humanize.Bytes(total))
	}
}
