package echoapi

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tukio/realtime"
)

type realtimeApi struct {
	hub *realtime.Hub
}

func registerRealtimeAPI(g *echo.Group, jwt echo.MiddlewareFunc, hub *realtime.Hub) {
	api := realtimeApi{hub: hub}

	// the bearer credential may come as a header or a `token` query param
	g.GET("/realtime", api.subscribe, queryTokenMiddleware(), jwt)
}

// subscribe upgrades the request to a server-sent-events push channel and
// parks it until the client goes away. The hub owns the handshake ack, the
// keepalive ping and all broadcasts.
func (api *realtimeApi) subscribe(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	conn := &sseConn{res: res}
	api.hub.Connect(conn, ctxUsr)
	defer api.hub.Disconnect(conn)

	<-ctx.Request().Context().Done()
	return nil
}

// sseConn frames hub payloads as server-sent events. Sends are serialized:
// the keepalive goroutine and broadcasts share the underlying writer.
type sseConn struct {
	mu  sync.Mutex
	res *echo.Response
}

var _ realtime.Conn = (*sseConn)(nil)

func (c *sseConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.res, "data: %s\n\n", payload); err != nil {
		return err
	}
	c.res.Flush()
	return nil
}
