package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/pkg/logger"
)

// Client talks to the platform over REST and the realtime channel. The
// session cookie acquired at login authenticates both.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	// OnNewMessage and OnMembershipChanged receive pushed events. Set them
	// before Connect.
	OnNewMessage        func(msg *model.Message)
	OnMembershipChanged func(conv *model.Conversation)
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, log *logger.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		logger: log,
	}, nil
}

type apiError struct {
	Error struct {
		Kind    string `json:"kind"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil && ae.Error.Kind != "" {
			return fmt.Errorf("%s: %s", ae.Error.Kind, ae.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Register creates an account and starts a session.
func (c *Client) Register(ctx context.Context, username, password string) (*model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodPost, "/auth/register",
		model.RegisterRequest{Username: username, Password: password}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login starts a session; the session cookie lands in the jar.
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodPost, "/auth/login",
		model.LoginRequest{Username: username, Password: password}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Conversations lists the caller's conversations.
func (c *Client) Conversations(ctx context.Context) (*model.ListConversationsResponse, error) {
	var resp model.ListConversationsResponse
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateDirect returns the direct conversation with the other user,
// creating it when absent.
func (c *Client) CreateDirect(ctx context.Context, otherUserID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, http.MethodPost, "/conversations/direct",
		model.CreateDirectConversationRequest{OtherUserID: otherUserID}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateGroup creates a group conversation owned by the caller.
func (c *Client) CreateGroup(ctx context.Context, name, description string, usernames []string) (*model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, http.MethodPost, "/conversations",
		model.CreateGroupRequest{Name: name, Description: description, Usernames: usernames}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// RemoveMember removes a member; targeting yourself leaves the
// conversation.
func (c *Client) RemoveMember(ctx context.Context, conversationID, targetUserID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/conversations/%d/members", conversationID),
		model.RemoveMemberRequest{TargetUserID: targetUserID}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Page fetches one backward history page.
func (c *Client) Page(ctx context.Context, conversationID uint64, page int) (*model.MessagePage, error) {
	var result model.MessagePage
	path := fmt.Sprintf("/messages/%d?page=%d", conversationID, page)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Send persists a message synchronously. Announcing is a separate step.
func (c *Client) Send(ctx context.Context, conversationID uint64, content string) (*model.Message, error) {
	var msg model.Message
	err := c.do(ctx, http.MethodPost, "/messages",
		model.SendMessageRequest{ConversationID: conversationID, Content: content}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage soft-deletes one of the caller's own messages.
func (c *Client) DeleteMessage(ctx context.Context, messageID uint64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), nil, nil)
}

// Connect dials the realtime channel and starts the read loop. The session
// cookie from the jar rides along on the upgrade request.
func (c *Client) Connect(ctx context.Context) error {
	wsURL, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	}

	dialer := websocket.Dialer{Jar: c.http.Jar}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var ev model.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			c.logger.Debug("realtime channel closed", zap.Error(err))
			return
		}
		switch ev.Type {
		case model.EventNewMessage:
			if c.OnNewMessage != nil {
				c.OnNewMessage(ev.Message)
			}
		case model.EventMembershipChanged:
			if c.OnMembershipChanged != nil {
				c.OnMembershipChanged(ev.Conversation)
			}
		}
	}
}

func (c *Client) writeEvent(ev model.ClientEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("realtime channel not connected")
	}
	return c.conn.WriteJSON(ev)
}

// Join subscribes the connection to a conversation room.
func (c *Client) Join(conversationID uint64) error {
	return c.writeEvent(model.ClientEvent{Type: model.EventJoin, ConversationID: conversationID})
}

// Leave unsubscribes the connection from a conversation room.
func (c *Client) Leave(conversationID uint64) error {
	return c.writeEvent(model.ClientEvent{Type: model.EventLeave, ConversationID: conversationID})
}

// Announce asks the room to broadcast an already-persisted message.
func (c *Client) Announce(conversationID uint64, msg *model.Message) error {
	return c.writeEvent(model.ClientEvent{
		Type:           model.EventAnnounce,
		ConversationID: conversationID,
		Message:        msg,
	})
}

// Close shuts the realtime channel.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
