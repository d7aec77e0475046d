package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/printbridge/internal/api"
	"github.com/mattjoyce/printbridge/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type statusMsg api.Snapshot

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// --- Commands ---

func newRequest(apiURL, apiKey, path string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(apiURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

// subscribeToEvents connects to the SSE /events endpoint and feeds events
// into ch. Passing the last seen ID makes the server replay only what was missed.
// Returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(apiURL, apiKey string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := newRequest(apiURL, apiKey, "/events")
		if err != nil {
			return errMsg(err)
		}
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("events: %s", resp.Status))
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		var current events.Event

		for scanner.Scan() {
			line := scanner.Text()

			if line == "" {
				if len(current.Data) > 0 {
					current.At = time.Now()
					ch <- current
					current = events.Event{}
				}
				continue
			}

			switch {
			case strings.HasPrefix(line, "id: "):
				if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
					current.ID = id
				}
			case strings.HasPrefix(line, "event: "):
				current.Type = line[7:]
			case strings.HasPrefix(line, "data: "):
				current.Data = []byte(line[6:])
			}
		}

		return sseDisconnectedMsg{}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchStatus queries GET /status.
func fetchStatus(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := newRequest(apiURL, apiKey, "/status")
	if err != nil {
		return errMsg(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errMsg(fmt.Errorf("status: %s", resp.Status))
	}

	var s api.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return errMsg(err)
	}
	return statusMsg(s)
}
