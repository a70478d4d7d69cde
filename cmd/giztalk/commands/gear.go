package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/go/pkg/cli"
)

var (
	gearServer string
	gearDevice string
	gearPlain  bool
)

var gearCmd = &cobra.Command{
	Use:   "gear",
	Short: "Interactive device simulator",
	Long: `Connect to a giztalk server as a device and chat over the text
listen path. Each input line is sent as a typed utterance; server
events and replies render live.

Commands inside the session:
  /bye     send goodbye and exit
  /abort   abort the current reply
  /quit    close the connection

Examples:
  giztalk gear
  giztalk gear --server ws://localhost:8091/ws/giztalk/v1/ --device user_chat_u1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, device := gearServer, gearDevice
		if server == "" || device == "" {
			cfg, err := GetConfig()
			if err != nil {
				return err
			}
			ctx, err := cfg.ResolveContext(contextName)
			if err != nil {
				return fmt.Errorf("no --server/--device and %w", err)
			}
			if server == "" {
				server = ctx.ServerURL
			}
			if device == "" {
				device = ctx.DeviceID
			}
		}
		if server == "" {
			return fmt.Errorf("server URL is required")
		}
		if device == "" {
			return fmt.Errorf("device id is required")
		}
		return runGear(server, device)
	},
}

// gearView is the mutable state behind the rendered frame.
type gearView struct {
	mu     sync.Mutex
	styles cli.Styles
	device string
	status string
	lines  []string
	events []string
	plain  bool
}

func (v *gearView) setStatus(s string) {
	v.mu.Lock()
	v.status = s
	v.mu.Unlock()
	if v.plain {
		fmt.Printf("[%s]\n", s)
		return
	}
	v.render()
}

func (v *gearView) addLine(who, text string, style func(string) string) {
	v.mu.Lock()
	v.lines = append(v.lines, style(who)+" "+text)
	v.mu.Unlock()
	if v.plain {
		fmt.Printf("%s %s\n", who, text)
		return
	}
	v.render()
}

func (v *gearView) addEvent(text string) {
	v.mu.Lock()
	v.events = append(v.events, text)
	v.mu.Unlock()
	if v.plain {
		fmt.Printf("  (%s)\n", text)
		return
	}
	v.render()
}

func (v *gearView) render() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.plain {
		return
	}
	frame := cli.Transcript{
		Styles: v.styles,
		Title:  "giztalk gear · " + v.device,
		Status: v.status,
		Lines:  v.lines,
		Events: v.events,
		Help:   "type to chat · /bye goodbye · /abort interrupt · /quit exit",
	}
	fmt.Print("\033[H\033[2J" + frame.Render(100) + "\n> ")
}

func runGear(server, device string) error {
	hdr := http.Header{}
	hdr.Set("device-id", device)
	conn, _, err := websocket.DefaultDialer.Dial(server, hdr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", server, err)
	}
	defer conn.Close()

	view := &gearView{
		styles: cli.NewStyles(cli.DefaultTheme),
		device: device,
		status: "connecting",
		plain:  gearPlain,
	}

	send := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	if err := send(map[string]any{"type": "hello", "version": 1, "transport": "websocket"}); err != nil {
		return err
	}

	done := make(chan struct{})
	go gearReadLoop(conn, view, done)

	scanner := bufio.NewScanner(os.Stdin)
	view.setStatus("connected")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit":
			return nil
		case "/bye":
			send(map[string]any{"type": "goodbye"})
		case "/abort":
			send(map[string]any{"type": "abort", "reason": "user"})
		default:
			view.addLine("我:", text, view.styles.User.Render)
			if err := send(map[string]any{"type": "listen", "state": "text", "text": text}); err != nil {
				return err
			}
		}
		select {
		case <-done:
			return nil
		default:
		}
	}
	<-done
	return scanner.Err()
}

// gearReadLoop renders server events until the connection closes.
func gearReadLoop(conn *websocket.Conn, view *gearView, done chan struct{}) {
	defer close(done)
	audioFrames := 0
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			view.setStatus("closed")
			return
		}
		if mt == websocket.BinaryMessage {
			audioFrames++
			if audioFrames%50 == 0 {
				view.addEvent(fmt.Sprintf("audio: %d frames", audioFrames))
			}
			continue
		}
		var ev map[string]any
		if json.Unmarshal(data, &ev) != nil {
			continue
		}
		typ, _ := ev["type"].(string)
		switch typ {
		case "hello":
			view.setStatus("session " + str(ev["session_id"]))
		case "stt":
			view.addEvent("stt: " + str(ev["text"]))
		case "tts":
			switch str(ev["state"]) {
			case "sentence_start":
				view.addLine("机器人:", str(ev["text"]), view.styles.Robot.Render)
			case "start":
				view.setStatus("speaking")
			case "stop":
				view.setStatus("idle")
			}
		case "llm":
			view.addEvent("emotion: " + str(ev["emotion"]))
		default:
			view.addEvent(typ)
		}
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func init() {
	gearCmd.Flags().StringVar(&gearServer, "server", "", "gateway websocket URL (overrides context)")
	gearCmd.Flags().StringVar(&gearDevice, "device", "", "device id (overrides context)")
	gearCmd.Flags().BoolVar(&gearPlain, "plain", false, "disable the TUI frame")
	rootCmd.AddCommand(gearCmd)
}
