package pgrst

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/edgeflare/dataprovider/pkg/rest"
	"github.com/spf13/cobra"
)

func newURLCmd(a *app) *cobra.Command {
	var params string
	var raw bool

	cmd := &cobra.Command{
		Use:   "url <operation> <resource>",
		Short: "Print the requests an operation would send, without sending them",
		Example: `  pgrst url getList posts --params '{"pagination":{"page":1,"perPage":10},"filter":{"title@ilike":"hello"}}'
  pgrst url getMany contacts --params '{"ids":["[1,\"a\"]","[2,\"b\"]"]}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := parseOperation(args[0])
			if err != nil {
				return err
			}
			p := a.newProvider(&dryRun{out: cmd.OutOrStdout(), raw: raw})
			_, err = p.Dispatch(cmd.Context(), op, args[1], []byte(params))
			return err
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "{}", "operation params as JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the URL percent-encoded as sent")
	return cmd
}

// dryRun is a Transport printing each request and answering with an empty result.
// List responses carry a Content-Range so the list operations complete.
type dryRun struct {
	out io.Writer
	raw bool
}

func (d *dryRun) Send(_ context.Context, req *httputil.Request) (*httputil.Response, error) {
	u := req.URL
	if !d.raw {
		if decoded, err := url.QueryUnescape(u); err == nil {
			u = decoded
		}
	}
	fmt.Fprintf(d.out, "%s %s\n", req.Method, u)

	for _, k := range slices.Sorted(maps.Keys(req.Header)) {
		fmt.Fprintf(d.out, "%s: %s\n", k, strings.Join(req.Header[k], ", "))
	}
	if req.Body != nil {
		b, err := json.MarshalIndent(req.Body, "", "  ")
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(d.out, "\n%s\n", b)
	}
	fmt.Fprintln(d.out)

	body := "[]"
	if req.Header.Get("Accept") == rest.MediaTypeObject {
		body = "{}"
	}
	h := http.Header{}
	h.Set(rest.HeaderContentRange, rest.FormatContentRange(0, 0, 0))
	return &httputil.Response{StatusCode: http.StatusOK, Headers: h, Body: []byte(body)}, nil
}

var _ provider.Transport = (*dryRun)(nil)
