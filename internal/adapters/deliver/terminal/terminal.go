// Package terminal is the interactive delivery platform: it reads
// messages from stdin, relays them to the chat surface, and prints the
// streamed response to stdout.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/deskbridge/internal/application"
	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/ports"
)

const sourceName = "terminal"

type Platform struct {
	messages *application.MessageService
	in       io.Reader
	out      io.Writer

	promptStyle lipgloss.Style
	infoStyle   lipgloss.Style
	errStyle    lipgloss.Style
	bodyStyle   lipgloss.Style
}

var _ ports.Platform = (*Platform)(nil)

func New(messages *application.MessageService) *Platform {
	return &Platform{
		messages:    messages,
		in:          os.Stdin,
		out:         os.Stdout,
		promptStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		infoStyle:   lipgloss.NewStyle().Faint(true),
		errStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		bodyStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}

func (p *Platform) Name() string { return sourceName }

// Run reads lines until EOF or the context ends. Each line becomes one
// relayed message; the response is printed when it completes.
func (p *Platform) Run(ctx context.Context) error {
	fmt.Fprintln(p.out, p.infoStyle.Render("deskbridge terminal (blank line to quit, /new for a fresh thread)"))

	scanner := bufio.NewScanner(p.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(p.out, p.promptStyle.Render("> "))

		line, err := p.readLine(ctx, scanner)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		text := strings.TrimSpace(line)
		if text == "" {
			return nil
		}

		p.relay(ctx, text)
	}
}

func (p *Platform) relay(ctx context.Context, text string) {
	in := application.InboundMessage{
		Text:        text,
		Username:    "terminal",
		ChannelName: "terminal",
		Source:      sourceName,
	}

	var streamed int
	result, err := p.messages.HandleIncoming(ctx, in, func(update domain.StreamUpdate) {
		streamed++
		fmt.Fprint(p.out, p.infoStyle.Render("."))
	})
	if streamed > 0 {
		fmt.Fprintln(p.out)
	}
	if err != nil {
		fmt.Fprintln(p.out, p.errStyle.Render("error: "+err.Error()))
		return
	}

	if !result.Success {
		fmt.Fprintln(p.out, p.errStyle.Render("incomplete: "+result.Message))
	}
	if result.Content != "" {
		fmt.Fprintln(p.out, p.bodyStyle.Render(result.Content))
	}
	fmt.Fprintln(p.out, p.infoStyle.Render(fmt.Sprintf("(%s, %d updates)", result.Elapsed.Round(10*time.Millisecond), result.Updates)))
}

// readLine waits for scanner input in a goroutine so a cancelled
// context unblocks the loop even when stdin stays open.
func (p *Platform) readLine(ctx context.Context, scanner *bufio.Scanner) (string, error) {
	type scanResult struct {
		line string
		err  error
	}

	ch := make(chan scanResult, 1)
	go func() {
		if scanner.Scan() {
			ch <- scanResult{line: scanner.Text()}
			return
		}
		if err := scanner.Err(); err != nil {
			ch <- scanResult{err: err}
			return
		}
		ch <- scanResult{err: io.EOF}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}
