// Package gateway is the websocket front door: it upgrades device
// connections, binds them to their configured role and feeds decoded
// traffic into the dialogue controller.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/giztalk/go/pkg/audio/codec/opus"
	"github.com/haivivi/giztalk/go/pkg/dialogue"
	"github.com/haivivi/giztalk/go/pkg/mcp"
	"github.com/haivivi/giztalk/go/pkg/session"
	"github.com/haivivi/giztalk/go/pkg/store"
	"github.com/haivivi/giztalk/go/pkg/vad"
	"github.com/haivivi/giztalk/go/pkg/wire"
)

// wsChannel adapts one websocket connection to the session channel.
// gorilla allows a single concurrent writer, so all sends share a lock.
type wsChannel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsChannel) SendText(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

// Options configure a Server.
type Options struct {
	Config     Config
	Store      *store.Store
	Controller *dialogue.Controller

	// Registry tracks live sessions; nil creates one.
	Registry *session.Registry

	// VadModel drives utterance segmentation. Nil disables the audio
	// path; text listening still works.
	VadModel vad.Model

	Logger *slog.Logger
}

// Server accepts device websocket connections and runs their read loops.
type Server struct {
	cfg      Config
	store    *store.Store
	ctrl     *dialogue.Controller
	registry *session.Registry
	vadModel vad.Model
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	bindCodes map[string]string // device id -> pending bind code
	announced map[string]bool   // session id -> bind prompt spoken
}

// NewServer creates a Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("gateway: store is required")
	}
	if opts.Controller == nil {
		return nil, errors.New("gateway: controller is required")
	}
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		cfg:      opts.Config,
		store:    opts.Store,
		ctrl:     opts.Controller,
		registry: opts.Registry,
		vadModel: opts.VadModel,
		log:      opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		bindCodes: make(map[string]string),
		announced: make(map[string]bool),
	}, nil
}

// Registry exposes the session registry, mainly for tests.
func (g *Server) Registry() *session.Registry {
	return g.registry
}

// Handler returns the HTTP handler serving the websocket endpoint, with
// and without the trailing slash.
func (g *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	path := g.cfg.WebsocketPath
	mux.HandleFunc(path, g.handleWS)
	if trimmed := strings.TrimSuffix(path, "/"); trimmed != "" && trimmed != path {
		mux.HandleFunc(trimmed, g.handleWS)
	}
	return mux
}

// Run serves until ctx is cancelled. The idle-session reaper runs
// alongside when enabled.
func (g *Server) Run(ctx context.Context) error {
	if g.cfg.CheckInactiveSession {
		g.registry.StartReaper(ctx, session.DefaultReapInterval, g.cfg.InactiveTimeout(), func(s *session.Session) {
			g.ctrl.HandleTimeout(context.Background(), s)
		})
	}
	srv := &http.Server{Addr: g.cfg.Addr(), Handler: g.Handler()}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	g.log.Info("gateway listening", "addr", g.cfg.Addr(), "path", g.cfg.WebsocketPath)
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// deviceID resolves the device identity from headers or query
// parameters, in that order.
func deviceID(r *http.Request) string {
	if v := r.Header.Get("device-id"); v != "" {
		return v
	}
	q := r.URL.Query()
	for _, key := range []string{"device-id", "mac_address", "uuid"} {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func (g *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := deviceID(r)
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	if id == "" {
		g.log.Warn("connection without device id", "remote", r.RemoteAddr)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "device id required"))
		conn.Close()
		return
	}

	ctx := context.Background()
	s := session.New(uuid.NewString(), &wsChannel{conn: conn}, g.log)
	if codec, err := opus.NewCodec(); err != nil {
		g.log.Error("opus codec unavailable", "session", s.ID, "err", err)
	} else {
		s.Codec = codec
	}
	if g.vadModel != nil {
		s.Segmenter = vad.New(g.vadModel, vad.Options{
			PreBufferMs: g.cfg.VadPrebufferMs,
			TailKeepMs:  g.cfg.VadTailKeepMs,
			Enhance:     g.cfg.VadAudioEnhancementEnabled,
			Logger:      g.log,
		})
	}
	g.registry.Add(s)

	bound := g.bindDevice(ctx, s, id)
	g.log.Info("device connected", "device", id, "session", s.ID, "bound", bound)

	g.readLoop(ctx, s, conn, id)
	g.connectionClosed(ctx, s)
}

func (g *Server) readLoop(ctx context.Context, s *session.Session, conn *websocket.Conn, deviceID string) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Debug("read loop ended", "session", s.ID, "err", err)
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if s.Device() != nil && s.Streaming() {
				g.ctrl.ProcessAudio(ctx, s, data)
			}
		case websocket.TextMessage:
			g.dispatch(ctx, s, deviceID, data)
		}
	}
}

func (g *Server) dispatch(ctx context.Context, s *session.Session, deviceID string, data []byte) {
	msg, err := wire.Parse(data)
	if err != nil {
		g.log.Warn("unparseable frame", "session", s.ID, "err", err)
		return
	}
	if m, ok := msg.(*wire.Hello); ok {
		g.handleHello(ctx, s, deviceID, m)
		return
	}
	if s.Device() == nil {
		// Everything except hello waits for a binding.
		g.handleUnbound(ctx, s, deviceID)
		return
	}
	switch m := msg.(type) {
	case *wire.Listen:
		g.ctrl.HandleListen(ctx, s, m)
	case *wire.IotUpdate:
		g.ctrl.HandleIot(ctx, s, m)
	case *wire.Abort:
		g.ctrl.HandleAbort(s, m.Reason)
	case *wire.Goodbye:
		g.ctrl.HandleGoodbye(ctx, s)
	case *wire.Mcp:
		g.ctrl.HandleMcp(s, m)
	}
}

func (g *Server) handleHello(ctx context.Context, s *session.Session, deviceID string, m *wire.Hello) {
	s.Touch()
	if err := s.SendText(wire.NewHelloAck(s.ID)); err != nil {
		g.log.Warn("hello ack failed", "session", s.ID, "err", err)
		return
	}
	if m.Features != nil && m.Features.Mcp {
		go g.initBridge(s)
	}
	if s.Device() == nil {
		g.handleUnbound(ctx, s, deviceID)
	}
}

// bindDevice attaches the session to its configured role. A virtual
// device from the app is created on the fly against the user's first
// role; an unknown hardware device stays unbound until the user adds it.
func (g *Server) bindDevice(ctx context.Context, s *session.Session, deviceID string) bool {
	dev, err := g.store.Devices.Get(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		if strings.HasPrefix(deviceID, store.VirtualDevicePrefix) {
			return g.bindVirtual(ctx, s, deviceID)
		}
		return false
	}
	if err != nil {
		g.log.Error("device lookup", "device", deviceID, "err", err)
		return false
	}
	if dev.RoleID == "" {
		return false
	}
	if err := g.ctrl.BindRole(ctx, s, dev, dev.RoleID); err != nil {
		g.log.Error("role binding failed", "device", deviceID, "role", dev.RoleID, "err", err)
		return false
	}
	g.adopt(s, deviceID)
	if err := g.store.Devices.SetState(ctx, deviceID, store.DeviceOnline); err != nil {
		g.log.Warn("device online not recorded", "device", deviceID, "err", err)
	}
	return true
}

func (g *Server) bindVirtual(ctx context.Context, s *session.Session, deviceID string) bool {
	uid := strings.TrimPrefix(deviceID, store.VirtualDevicePrefix)
	roles, err := g.store.Roles.ListByUser(ctx, uid)
	if err != nil || len(roles) == 0 {
		g.log.Warn("virtual device without roles", "device", deviceID, "err", err)
		return false
	}
	dev := &store.Device{
		ID:        deviceID,
		UserID:    uid,
		RoleID:    roles[0].ID,
		State:     store.DeviceOnline,
		LastLogin: time.Now().UnixMilli(),
	}
	if err := g.store.Devices.Put(ctx, dev); err != nil {
		g.log.Error("virtual device not recorded", "device", deviceID, "err", err)
	}
	if err := g.ctrl.BindRole(ctx, s, dev, dev.RoleID); err != nil {
		g.log.Error("role binding failed", "device", deviceID, "role", dev.RoleID, "err", err)
		return false
	}
	g.adopt(s, deviceID)
	return true
}

// adopt claims the device slot; an earlier session on the same device is
// displaced and closed.
func (g *Server) adopt(s *session.Session, deviceID string) {
	displaced := g.registry.BindDevice(deviceID, s.ID)
	if displaced == "" || displaced == s.ID {
		return
	}
	if old, ok := g.registry.Get(displaced); ok {
		g.log.Info("device reconnected, displacing session", "device", deviceID, "old", displaced)
		g.ctrl.ReleaseSession(old, "displaced")
		old.CloseChannel()
		g.registry.Remove(displaced)
	}
}

// handleUnbound tells the user how to claim the device. The bind code is
// stable per device; the prompt is spoken once per connection.
func (g *Server) handleUnbound(ctx context.Context, s *session.Session, deviceID string) {
	g.mu.Lock()
	if g.announced[s.ID] {
		g.mu.Unlock()
		return
	}
	g.announced[s.ID] = true
	code, ok := g.bindCodes[deviceID]
	if !ok {
		code = fmt.Sprintf("%06d", rand.Intn(1_000_000))
		g.bindCodes[deviceID] = code
	}
	g.mu.Unlock()

	g.log.Info("unbound device", "device", deviceID, "code", code)
	digits := strings.Join(strings.Split(code, ""), " ")
	g.ctrl.Announce(ctx, s, "设备尚未绑定，请在管理页面添加设备，验证码是 "+digits+"。")
}

// BindCode returns the pending bind code for a device, if one was issued.
func (g *Server) BindCode(deviceID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code, ok := g.bindCodes[deviceID]
	return code, ok
}

func (g *Server) initBridge(s *session.Session) {
	bridge, err := mcp.NewBridge(mcp.BridgeOptions{
		Send: func(payload json.RawMessage) error {
			return s.SendText(wire.NewMcpRequest(s.ID, payload))
		},
		Holder:       s.Tools,
		SessionToken: s.ID,
		VisionURL:    g.visionURL(),
		MaxTools:     g.cfg.McpMaxToolsCount,
		Logger:       g.log,
	})
	if err != nil {
		g.log.Error("mcp bridge", "session", s.ID, "err", err)
		return
	}
	s.SetBridge(bridge)
	if err := bridge.Initialize(context.Background()); err != nil {
		g.log.Warn("mcp initialize", "session", s.ID, "err", err)
	}
}

func (g *Server) visionURL() string {
	if g.cfg.ServerDomain == "" {
		return ""
	}
	return strings.TrimSuffix(g.cfg.ServerDomain, "/") + "/api/vision"
}

// connectionClosed releases everything the connection held and records
// the device's new state: offline when the link dropped, standby when
// the session had already said goodbye.
func (g *Server) connectionClosed(ctx context.Context, s *session.Session) {
	wasOpen := s.HasChannel()
	g.ctrl.ReleaseSession(s, "connection closed")
	s.CloseChannel()
	g.registry.Remove(s.ID)
	if s.Codec != nil {
		s.Codec.Close()
	}
	g.mu.Lock()
	delete(g.announced, s.ID)
	g.mu.Unlock()

	if dev := s.Device(); dev != nil {
		state := store.DeviceStandby
		if wasOpen {
			state = store.DeviceOffline
		}
		if err := g.store.Devices.SetState(ctx, dev.ID, state); err != nil {
			g.log.Warn("device state not recorded", "device", dev.ID, "err", err)
		}
		g.log.Info("device disconnected", "device", dev.ID, "session", s.ID, "state", state)
	}
}
