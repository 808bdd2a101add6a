package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"voicekey/internal/adapter/overlay"
	"voicekey/internal/domain"
)

// KeyRouter decides the fate of raw key events and owns chord recording.
type KeyRouter interface {
	Handle(ctx context.Context, ev domain.KeyEvent) domain.Verdict
	Arm(ctx context.Context, target domain.ChordTarget)
	Disarm(ctx context.Context)
	Armed() domain.ChordTarget
}

// FocusUpdater records the frontmost application reported by the event tap.
type FocusUpdater interface {
	Update(ctx context.Context, app domain.AppContext)
}

// OverlayState is the overlay and window model driven by the renderer.
type OverlayState interface {
	domain.Overlay
	domain.ViewNavigator
	Snapshot() overlay.State
}

// SessionState exposes the recording state machine.
type SessionState interface {
	Mode() domain.RecordingMode
	IsStopping() bool
}

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Router   KeyRouter
	Focus    FocusUpdater
	Overlay  OverlayState
	Commands domain.CommandService
	Session  domain.SessionDelegate
	Machine  SessionState        // can be nil
	History  domain.HistoryStore // can be nil (history disabled)
	Bus      domain.EventBus
	Logger   *slog.Logger
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
// key.event runs serially per connection so events are routed in the order
// the tap reported them.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterSerialHandler("key.event", keyEventHandler(deps))
	s.RegisterSerialHandler("focus.changed", focusChangedHandler(deps))

	s.RegisterHandler("shortcut.arm", shortcutArmHandler(deps))
	s.RegisterHandler("shortcut.disarm", shortcutDisarmHandler(deps))
	s.RegisterHandler("overlay.expand", overlayExpandHandler(deps))
	s.RegisterHandler("overlay.collapse", overlayCollapseHandler(deps))
	s.RegisterHandler("overlay.state", overlayStateHandler(deps))
	s.RegisterHandler("view.show", viewShowHandler(deps))
	s.RegisterHandler("command.chat.new", chatNewHandler(deps))
	s.RegisterHandler("command.chat.switch", chatSwitchHandler(deps))
	s.RegisterHandler("command.chat.delete", chatDeleteHandler(deps))
	s.RegisterHandler("command.chat.list", chatListHandler(deps))
	s.RegisterHandler("session.cancel", sessionCancelHandler(deps))

	if deps.History != nil {
		s.RegisterHandler("history.recent", historyRecentHandler(deps))
	}
}

var okResponse = json.RawMessage(`{"ok":true}`)

// --- key events ---

type keyEventResponse struct {
	Verdict domain.Verdict `json:"verdict"`
}

func keyEventHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var ev domain.KeyEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		switch ev.Kind {
		case domain.KeyDown, domain.KeyUp, domain.FlagsChanged:
		default:
			return nil, domain.NewDomainError("key.event", domain.ErrRPCInvalidPayload, "unknown kind "+string(ev.Kind))
		}
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		return json.Marshal(keyEventResponse{Verdict: deps.Router.Handle(ctx, ev)})
	}
}

func focusChangedHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var app domain.AppContext
		if err := json.Unmarshal(payload, &app); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		deps.Focus.Update(ctx, app)
		return okResponse, nil
	}
}

// --- shortcut recording ---

type shortcutArmRequest struct {
	Target string `json:"target"`
}

type shortcutStateResponse struct {
	Armed domain.ChordTarget `json:"armed"`
}

func shortcutArmHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req shortcutArmRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		target, err := domain.ParseChordTarget(req.Target)
		if err != nil {
			return nil, err
		}
		deps.Router.Arm(ctx, target)
		return json.Marshal(shortcutStateResponse{Armed: deps.Router.Armed()})
	}
}

func shortcutDisarmHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		deps.Router.Disarm(ctx)
		return json.Marshal(shortcutStateResponse{Armed: deps.Router.Armed()})
	}
}

// --- overlay and views ---

type overlayExpandRequest struct {
	Text string `json:"text"`
}

func overlayExpandHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req overlayExpandRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		deps.Overlay.ExpandCommandOutput(req.Text)
		return okResponse, nil
	}
}

func overlayCollapseHandler(deps HandlerDeps) RPCHandler {
	return func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		deps.Overlay.CollapseCommandOutput()
		return okResponse, nil
	}
}

func overlayStateHandler(deps HandlerDeps) RPCHandler {
	return func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Overlay.Snapshot())
	}
}

type viewShowRequest struct {
	View string `json:"view"`
}

func viewShowHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req viewShowRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		v, err := domain.ParseView(req.View)
		if err != nil {
			return nil, err
		}
		deps.Overlay.ShowView(v)
		return okResponse, nil
	}
}

// --- command chats ---

type chatIDPayload struct {
	ID string `json:"id"`
}

func chatNewHandler(deps HandlerDeps) RPCHandler {
	return func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(chatIDPayload{ID: deps.Commands.CreateNewChat()})
	}
}

func chatSwitchHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req chatIDPayload
		if err := json.Unmarshal(payload, &req); err != nil || req.ID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		if err := deps.Commands.SwitchToChat(req.ID); err != nil {
			return nil, err
		}
		return okResponse, nil
	}
}

func chatDeleteHandler(deps HandlerDeps) RPCHandler {
	return func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		if err := deps.Commands.DeleteCurrentChat(); err != nil {
			return nil, err
		}
		return okResponse, nil
	}
}

func chatListHandler(deps HandlerDeps) RPCHandler {
	return func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		chats := deps.Commands.Chats()
		if chats == nil {
			chats = []domain.Chat{}
		}
		return json.Marshal(chats)
	}
}

// --- session ---

type sessionCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func sessionCancelHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(sessionCancelResponse{Cancelled: deps.Session.OnCancelRequested(ctx)})
	}
}

// --- history ---

const defaultHistoryLimit = 50

type historyRecentRequest struct {
	Limit int `json:"limit"`
}

func historyRecentHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		req := historyRecentRequest{Limit: defaultHistoryLimit}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, domain.ErrRPCInvalidPayload
			}
		}
		if req.Limit <= 0 {
			req.Limit = defaultHistoryLimit
		}
		entries, err := deps.History.Recent(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []domain.HistoryEntry{}
		}
		return json.Marshal(entries)
	}
}
