// Package cli provides the interactive chat loop of the client.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "cli")

// Text of the chat loop
const (
	Banner      = "\nMCP Client Started!\nType your queries or 'quit' to exit."
	Prompt      = "\nQuery: "
	QuitCommand = "quit"
)

// maxReadErrors stops the loop when the input keeps failing
const maxReadErrors = 3

// Chat reads the queries from in, one per line, and writes the answers to out.
// The loop stops on `quit`, at the end of the input or when ctx is done.
// Empty lines are ignored.
func Chat(ctx context.Context, in io.Reader, out io.Writer, qp assistants.QueryProcessor) error {
	fmt.Fprintln(out, Banner)

	r := bufio.NewReader(in)
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(out, Prompt)
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			failures++
			logger.KV(xlog.ERROR, "status", "read_failed", "failures", failures, "err", err.Error())
			fmt.Fprintf(out, "\nError: %s\n", err.Error())
			if failures >= maxReadErrors {
				return errors.WithMessage(err, "unable to read query")
			}
			continue
		}
		failures = 0
		eof := err != nil

		query := strings.TrimSpace(line)
		if strings.EqualFold(query, QuitCommand) {
			return nil
		}
		if query != "" {
			logger.KV(xlog.DEBUG, "status", "query", "query", slices.StringUpto(query, 64))
			answer := qp.ProcessQuery(ctx, query)
			fmt.Fprintf(out, "\n%s\n", answer)
		}
		if eof {
			fmt.Fprintln(out)
			return nil
		}
	}
}
