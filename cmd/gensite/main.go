package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goombaio/namegenerator"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"gensite/internal/project"
	"gensite/internal/protocol"
)

var (
	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	doneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// errGenerationFailed is returned when the server ends with an error event.
var errGenerationFailed = errors.New("generation failed")

const readTimeout = 5 * time.Minute

func main() {
	app := &cli.App{
		Name:      "gensite",
		Usage:     "Generate a website project from a prompt",
		ArgsUsage: "<prompt...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Value: "ws://localhost:8000",
				Usage: "server base URL",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "session id (default: a generated name)",
			},
			&cli.StringFlag{
				Name:  "out",
				Value: "site",
				Usage: "directory streamed files are written to",
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "project template: landing, multipage or ecommerce",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if prompt == "" {
		cli.ShowAppHelp(c)
		return errors.New("a prompt is required")
	}

	sessionID := c.String("session")
	if sessionID == "" {
		sessionID = namegenerator.NewNameGenerator(time.Now().UnixNano()).Generate()
	}

	wsURL, err := sessionURL(c.String("server"), sessionID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(c.Context, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	fmt.Println(statusStyle.Render("session " + sessionID))

	msg := protocol.ClientMessage{Type: protocol.TypeGenerate, Prompt: prompt, Template: c.String("template")}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send prompt: %w", err)
	}

	store := project.NewStore(c.String("out"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return consume(conn, store, os.Stdout)
}

// sessionURL joins the server base URL and the session path.
func sessionURL(server, sessionID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(sessionID)
	return u.String(), nil
}

// consume renders events until the generation completes or fails, writing
// every streamed file to store.
func consume(conn *websocket.Conn, store *project.Store, w io.Writer) error {
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}

		var event protocol.Event
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("invalid event: %w", err)
		}

		done, err := render(event, store, w)
		if err != nil || done {
			return err
		}
	}
}

func render(event protocol.Event, store *project.Store, w io.Writer) (bool, error) {
	switch event.Type {
	case protocol.TypeThinking, protocol.TypeWriting, protocol.TypeAnalyzing:
		var p protocol.MessagePayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return false, fmt.Errorf("invalid %s event: %w", event.Type, err)
		}
		fmt.Fprintln(w, phaseStyle.Render("• "+p.Message))

	case protocol.TypeStream:
		var p protocol.FilesPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return false, fmt.Errorf("invalid stream event: %w", err)
		}
		for _, f := range p.Files.Files() {
			if err := store.CreateFile(f.Name, f.Content); err != nil {
				return false, err
			}
			fmt.Fprintln(w, fileStyle.Render(fmt.Sprintf("  + %s (%d bytes)", f.Name, len(f.Content))))
		}

	case protocol.TypeCompleted:
		var p protocol.CompletedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return false, fmt.Errorf("invalid completed event: %w", err)
		}
		fmt.Fprintln(w, doneStyle.Render("✓ "+p.Message))
		fmt.Fprintln(w, statusStyle.Render(fmt.Sprintf("%d files in %s", p.Files.Len(), store.Root())))
		return true, nil

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return false, fmt.Errorf("invalid error event: %w", err)
		}
		fmt.Fprintln(w, errorStyle.Render("✗ "+p.Message))
		return true, errGenerationFailed
	}
	return false, nil
}
