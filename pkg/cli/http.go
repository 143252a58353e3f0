package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/flags"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/parse"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

var (
	httpMethod      string
	httpHeaders     flags.StringSlice
	httpQuery       flags.StringSlice
	httpData        string
	httpDataFile    string
	httpForm        flags.StringSlice
	httpMultipart   flags.StringSlice
	httpContentType string
	httpVersion     string
)

var httpCmd = &cobra.Command{
	Use:   "http [METHOD] URL",
	Short: "Send an HTTP request",
	Long: `Send one HTTP request over a dedicated connection.

--http-version selects http1only, http2only (prior knowledge on cleartext) or
negotiate (ALPN on TLS, HTTP/1.1 on cleartext). The default comes from the
configuration.`,
	Example: `  hellohttp http https://example.com
  hellohttp http POST https://example.com/items -H 'Content-Type: application/json' -d '{"name":"a"}'
  hellohttp http https://example.com/upload -F name=report -F file=@report.pdf
  hellohttp http --http-version http2only --timeline http://localhost:8080/`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runHTTP,
}

func init() {
	rootCmd.AddCommand(httpCmd)

	f := httpCmd.Flags()
	f.StringVarP(&httpMethod, "method", "X", "", "HTTP method (default GET)")
	f.VarP(&httpHeaders, "header", "H", "Request header 'Name: value' (repeatable)")
	f.VarP(&httpQuery, "query", "q", "Query parameter name=value (repeatable)")
	f.StringVarP(&httpData, "data", "d", "", "Raw request body")
	f.StringVar(&httpDataFile, "data-file", "", "Send the content of a file as the body")
	f.Var(&httpForm, "form", "URL-encoded form field name=value (repeatable)")
	f.VarP(&httpMultipart, "multipart", "F", "Multipart field name=value, or name=@path for a file (repeatable)")
	f.StringVar(&httpContentType, "content-type", "", "Content type of a raw or file body")
	f.StringVar(&httpVersion, "http-version", "", "http1only, http2only or negotiate")
}

func runHTTP(cmd *cobra.Command, args []string) error {
	req, err := buildHTTPRequest(args)
	if err != nil {
		return err
	}
	version := config.ProtocolVersion(httpVersion)
	switch version {
	case "", config.ProtocolVersionHTTP1Only, config.ProtocolVersionHTTP2Only, config.ProtocolVersionNegotiate:
	default:
		return fmt.Errorf("invalid --http-version %q", httpVersion)
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	return s.run(cmd, callSpec{
		req: req,
		configure: func(o *transport.Options) {
			if version != "" {
				o.HTTP.ProtocolVersion = version
			}
		},
	})
}

func buildHTTPRequest(args []string) (*request.Request, error) {
	req := &request.Request{Protocol: protocol.ProtocolHTTP, Method: httpMethod}
	if len(args) == 2 {
		if req.Method != "" && !strings.EqualFold(req.Method, args[0]) {
			return nil, fmt.Errorf("method given twice: %s and %s", req.Method, args[0])
		}
		req.Method = args[0]
		req.URL = args[1]
	} else {
		req.URL = args[0]
	}
	req.Method = strings.ToUpper(req.Method)

	headers, err := parse.Pairs("header", httpHeaders)
	if err != nil {
		return nil, err
	}
	req.Headers = keyValues(headers)

	query, err := parse.Pairs("query", httpQuery, '=')
	if err != nil {
		return nil, err
	}
	req.QueryParams = keyValues(query)

	bodies := 0
	for _, set := range []bool{httpData != "", httpDataFile != "", len(httpForm) > 0, len(httpMultipart) > 0} {
		if set {
			bodies++
		}
	}
	if bodies > 1 {
		return nil, fmt.Errorf("only one of --data, --data-file, --form and --multipart can be used")
	}

	switch {
	case httpData != "":
		req.Body = request.Body{Kind: request.BodyRaw, Raw: httpData, ContentType: httpContentType}
	case httpDataFile != "":
		req.Body = request.Body{Kind: request.BodyFile, File: httpDataFile, ContentType: httpContentType}
	case len(httpForm) > 0:
		form, err := parse.Pairs("form", httpForm, '=')
		if err != nil {
			return nil, err
		}
		req.Body = request.Body{Kind: request.BodyForm, Form: keyValues(form)}
	case len(httpMultipart) > 0:
		fields, err := parse.Pairs("multipart", httpMultipart, '=')
		if err != nil {
			return nil, err
		}
		parts := make([]request.Part, 0, len(fields))
		for _, f := range fields {
			if path, ok := strings.CutPrefix(f.Value, "@"); ok {
				parts = append(parts, request.Part{Name: f.Key, File: path})
				continue
			}
			parts = append(parts, request.Part{Name: f.Key, Value: f.Value})
		}
		req.Body = request.Body{Kind: request.BodyMultipart, Parts: parts}
	}

	if req.Method == "" {
		req.Method = http.MethodGet
		if req.Body.Kind != request.BodyNone {
			req.Method = http.MethodPost
		}
	}
	return req, nil
}
