package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	commandTimeout = 5 * time.Minute
	dataTimeout    = 10 * time.Minute
)

// connection drives the SMTP dialogue for one inbound peer, translating wire
// commands into pipeline callbacks and pipeline rejections into reply codes.
type connection struct {
	conn    net.Conn
	text    *textproto.Conn
	config  *Config
	backend *Backend
	logger  *slog.Logger

	sess      *Session
	helloSeen bool
	inTxn     bool
}

func newConnection(conn net.Conn, config *Config, backend *Backend, logger *slog.Logger) *connection {
	sess := NewSession(uuid.New().String(), conn.RemoteAddr().String())
	if host := reverseLookup(conn.RemoteAddr()); host != "" {
		sess.ClientHostname = host
	}
	if tlsConn, ok := conn.(*tls.Conn); ok {
		state := tlsConn.ConnectionState()
		sess.TLS = &TLSInfo{
			Version: tls.VersionName(state.Version),
			Cipher:  tls.CipherSuiteName(state.CipherSuite),
		}
	}
	sess.TransmissionType = "SMTP"

	return &connection{
		conn:    conn,
		text:    textproto.NewConn(conn),
		config:  config,
		backend: backend,
		logger: logger.With(
			"component", "smtp-conn",
			"session_id", sess.ID,
			"remote_addr", sess.RemoteAddr,
		),
		sess: sess,
	}
}

func (c *connection) serve(ctx context.Context) {
	defer c.text.Close()

	c.logger.Debug("connection accepted")
	c.reply(220, "%s ESMTP Inlet ready", c.config.Hostname)

	for {
		if ctx.Err() != nil {
			c.reply(421, "%s service shutting down", c.config.Hostname)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(commandTimeout))

		line, err := c.text.ReadLine()
		if err != nil {
			c.logger.Debug("connection closed", "error", err)
			return
		}

		verb, arg := splitCommand(line)
		switch verb {
		case "HELO":
			c.handleHello(arg, false)
		case "EHLO":
			c.handleHello(arg, true)
		case "MAIL":
			c.handleMail(arg)
		case "RCPT":
			c.handleRcpt(ctx, arg)
		case "DATA":
			c.handleData(ctx)
		case "RSET":
			c.resetTransaction()
			c.reply(250, "OK")
		case "NOOP":
			c.reply(250, "OK")
		case "VRFY":
			// Address verification outside a transaction is not offered.
			c.reply(252, "Cannot VRFY user, but will accept message and attempt delivery")
		case "QUIT":
			c.reply(221, "%s closing connection", c.config.Hostname)
			return
		default:
			c.reply(500, "Command not recognized")
		}
	}
}

func (c *connection) handleHello(arg string, extended bool) {
	if arg == "" {
		c.reply(501, "Hostname required")
		return
	}
	c.sess.HeloName = arg
	c.helloSeen = true
	c.resetTransaction()

	if !extended {
		c.sess.TransmissionType = "SMTP"
		c.reply(250, "%s greets %s", c.config.Hostname, arg)
		return
	}

	if c.sess.TLS != nil {
		c.sess.TransmissionType = "ESMTPS"
	} else {
		c.sess.TransmissionType = "ESMTP"
	}
	c.text.PrintfLine("250-%s greets %s", c.config.Hostname, arg)
	c.text.PrintfLine("250-PIPELINING")
	c.text.PrintfLine("250-8BITMIME")
	c.text.PrintfLine("250 SIZE %d", c.config.MaxMessageSize)
}

func (c *connection) handleMail(arg string) {
	if !c.helloSeen {
		c.reply(503, "Send HELO/EHLO first")
		return
	}
	if c.inTxn {
		c.reply(503, "Nested MAIL command")
		return
	}

	sender, params, ok := parsePathCommand(arg, "FROM")
	if !ok {
		c.reply(501, "Syntax: MAIL FROM:<address>")
		return
	}

	var declaredSize int64
	if v, ok := params["SIZE"]; ok {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil || size < 0 {
			c.reply(501, "Invalid SIZE parameter")
			return
		}
		if size > c.config.MaxMessageSize {
			c.reply(552, "Message size exceeds maximum of %d bytes", c.config.MaxMessageSize)
			return
		}
		declaredSize = size
	}

	c.backend.SenderDeclared(c.sess, sender, declaredSize)
	c.inTxn = true
	c.reply(250, "OK")
}

func (c *connection) handleRcpt(ctx context.Context, arg string) {
	if !c.inTxn {
		c.reply(503, "Send MAIL FROM first")
		return
	}

	rcpt, _, ok := parsePathCommand(arg, "TO")
	if !ok || rcpt == "" {
		c.reply(501, "Syntax: RCPT TO:<address>")
		return
	}

	if err := c.backend.RecipientDeclared(ctx, c.sess, rcpt); err != nil {
		c.replyError(err)
		return
	}
	c.reply(250, "OK")
}

func (c *connection) handleData(ctx context.Context) {
	if !c.inTxn {
		c.reply(503, "Send MAIL FROM first")
		return
	}

	c.reply(354, "Start mail input; end with <CRLF>.<CRLF>")
	c.conn.SetReadDeadline(time.Now().Add(dataTimeout))

	messageID, err := c.backend.BodyTransfer(ctx, c.sess, c.text.DotReader())
	if err != nil {
		c.replyError(err)
		// A stream failure leaves the wire in an undefined state; anything
		// else consumed the full payload and the dialogue can continue.
		var replyErr *ReplyError
		if errors.As(err, &replyErr) && replyErr.Kind == KindStreamReadFailure {
			c.text.Close()
			return
		}
		c.resetTransaction()
		return
	}

	c.reply(250, "OK message accepted id=%s", messageID)
	c.resetTransaction()
}

func (c *connection) resetTransaction() {
	c.sess.BeginTransaction("", 0, c.config.DefaultQuota)
	c.inTxn = false
}

func (c *connection) reply(code int, format string, args ...any) {
	if err := c.text.PrintfLine("%d %s", code, fmt.Sprintf(format, args...)); err != nil {
		c.logger.Debug("write failed", "error", err)
	}
}

// replyError maps a pipeline rejection onto its wire reply code. Reply codes
// live only here; the pipeline speaks in kinds and classes.
func (c *connection) replyError(err error) {
	var replyErr *ReplyError
	if !errors.As(err, &replyErr) {
		c.reply(451, "Local error in processing")
		return
	}

	code := 451
	switch replyErr.Kind {
	case KindUnknownRecipient:
		code = 550
	case KindInsufficientStorage:
		code = 452
	case KindDirectoryUnavailable, KindStreamReadFailure:
		code = 451
	case KindMessageTooLarge:
		code = 552
	case KindNoValidRecipients:
		code = 554
	}
	c.reply(code, "%s", replyErr.Message)
}

func splitCommand(line string) (verb, arg string) {
	verb = line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		verb, arg = line[:i], strings.TrimSpace(line[i+1:])
	}
	return strings.ToUpper(verb), arg
}

// parsePathCommand parses "FROM:<addr> KEY=VALUE ..." / "TO:<addr> ..."
// arguments, returning the path and any ESMTP parameters uppercase-keyed.
func parsePathCommand(arg, keyword string) (path string, params map[string]string, ok bool) {
	rest, found := cutPrefixFold(arg, keyword+":")
	if !found {
		return "", nil, false
	}
	rest = strings.TrimSpace(rest)

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		// MAIL FROM:<> carries an empty reverse-path
		if keyword == "FROM" {
			return "", map[string]string{}, true
		}
		return "", nil, false
	}

	path = strings.TrimSuffix(strings.TrimPrefix(fields[0], "<"), ">")
	params = make(map[string]string, len(fields)-1)
	for _, f := range fields[1:] {
		k, v, _ := strings.Cut(f, "=")
		params[strings.ToUpper(k)] = v
	}
	return path, params, true
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// reverseLookup resolves the peer's address to a hostname, best effort with
// a short budget so a slow resolver cannot stall the greeting.
func reverseLookup(addr net.Addr) string {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	names, err := net.DefaultResolver.LookupAddr(ctx, tcpAddr.IP.String())
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
