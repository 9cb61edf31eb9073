package chat

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gatherup/gatherup/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	groups     map[string]*GroupChat
	groupsLock sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		groups:     make(map[string]*GroupChat),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(time.Duration(pingInterval))
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		switch {
		case msg.Join != nil:
			c.joinGroup(&msg)
		case msg.Leave != nil:
			c.leaveGroup(&msg)
		case msg.Publish != nil:
			g := c.getGroup(msg.Publish.GroupSlug)
			if g != nil {
				select {
				case g.clientMsgChan <- &msg:
				default:
					c.queueMessage(ErrServiceUnavailable(msg.Id))
					c.log.Printf("clientMsgChan full for group %q", g.slug)
				}
			} else {
				c.queueMessage(ErrGroupNotFound(msg.Id))
			}
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopClient is safe to call more than once; a server shutdown and the
// read loop's cleanup can both reach it for the same connection.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.DeregisterClient(c)
	c.leaveAllGroups()
	c.stopClient()
}

// leaveAllGroups drains the connection's groups on disconnect. Each group
// handles the leave on its own goroutine; if a group cannot take the
// message its presence entry is cleared directly so the tracker never
// holds a dead connection.
func (c *Client) leaveAllGroups() {
	c.groupsLock.RLock()
	defer c.groupsLock.RUnlock()

	for _, g := range c.groups {
		leave := &ClientMessage{
			Leave:  &Leave{GroupSlug: g.slug},
			UserId: c.user.Id,
			client: c,
		}

		select {
		case g.leaveChan <- leave:
		default:
			c.log.Printf("leaveChan full for group %q, clearing presence directly", g.slug)
			c.chatServer.presence.Remove(g.slug, c.user.Id)
		}
	}
}

func (c *Client) joinGroup(msg *ClientMessage) {
	select {
	case c.chatServer.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) leaveGroup(msg *ClientMessage) {
	g := c.getGroup(msg.Leave.GroupSlug)
	if g == nil {
		c.log.Println("didn't find group")
		return
	}

	select {
	case g.leaveChan <- msg:
	default:
		c.log.Printf("leaveChan full for group %q", g.slug)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) delGroup(slug string) {
	c.groupsLock.Lock()
	defer c.groupsLock.Unlock()

	delete(c.groups, slug)
}

func (c *Client) addGroup(g *GroupChat) {
	c.groupsLock.Lock()
	defer c.groupsLock.Unlock()

	c.groups[g.slug] = g
}

func (c *Client) getGroup(slug string) *GroupChat {
	c.groupsLock.RLock()
	defer c.groupsLock.RUnlock()

	if g, ok := c.groups[slug]; ok {
		return g
	}

	return nil
}
