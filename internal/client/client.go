// Package client is the remote half of dsh: it sends each input line to a
// server and copies the framed response to the terminal.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/dsh-project/dsh/internal/builtin"
	"github.com/dsh-project/dsh/internal/rsh"
)

// LineReader yields user input one line at a time and returns io.EOF when
// input ends.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// Client holds one connection to a dsh server.
type Client struct {
	Prompt string

	conn net.Conn
	resp *rsh.ResponseReader
	log  *zap.Logger
}

// New wraps an established connection.
func New(conn net.Conn, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		Prompt: "dsh4> ",
		conn:   conn,
		resp:   rsh.NewResponseReader(conn),
		log:    log,
	}
}

// Dial connects to a server. network is "tcp" or "unix". A failed connect
// is not retried.
func Dial(ctx context.Context, network, addr string, log *zap.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c := New(conn, log)
	c.log.Debug("connected", zap.String("addr", addr))
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends line as one request and copies the response to out.
func (c *Client) Do(line string, out io.Writer) error {
	if err := rsh.WriteRequest(c.conn, line); err != nil {
		return err
	}
	seen := c.resp.Collisions()
	if _, err := c.resp.Copy(out); err != nil {
		return err
	}
	if n := c.resp.Collisions() - seen; n > 0 {
		c.log.Warn("response contained end-of-response bytes", zap.Int("count", n))
	}
	return nil
}

// Run is the interactive loop. It returns rsh.StatusExit or
// rsh.StatusStopServer once the matching reply has been printed, and
// rsh.StatusOK when input ends. Transport failures end the loop with
// rsh.StatusCommunication.
func (c *Client) Run(in LineReader, out io.Writer) (rsh.Status, error) {
	for {
		line, err := in.ReadLine(c.Prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return rsh.StatusOK, nil
		}
		if err != nil {
			return rsh.StatusClient, fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		err = c.Do(line, out)
		if errors.Is(err, rsh.ErrRequestTooLarge) {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if err != nil {
			return rsh.StatusCommunication, err
		}

		switch strings.TrimSpace(line) {
		case builtin.CmdExit:
			return rsh.StatusExit, nil
		case builtin.CmdStopServer:
			return rsh.StatusStopServer, nil
		}
	}
}
