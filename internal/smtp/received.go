package smtp

import (
	"fmt"
	"strings"
	"time"
)

// receivedDateFormat is the RFC-1123-style date layout used in synthesized
// trace headers, rendered in UTC with a fixed +0000 offset.
const receivedDateFormat = "Mon, 02 Jan 2006 15:04:05 +0000"

// synthesizeReceived builds the trace header prepended to every delivered
// copy. Origin rule: when both the peer's address and its reverse-DNS name
// are known, both are shown ([address] bracketed, name parenthesized) with a
// fold before the by-clause; when only one is known it stands alone; when
// neither is known the origin is recorded as localhost.
func synthesizeReceived(sess *Session, messageID, hostname, recipient string, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("Received: from ")
	sb.WriteString(heloOrUnknown(sess.HeloName))

	host := sess.ClientHostname
	addr := remoteIP(sess.RemoteAddr)
	switch {
	case host != "" && addr != "":
		fmt.Fprintf(&sb, " [%s] (%s)\r\n by ", addr, host)
	case addr != "":
		fmt.Fprintf(&sb, " %s by ", addr)
	case host != "":
		fmt.Fprintf(&sb, " %s by ", host)
	default:
		sb.WriteString(" localhost by ")
	}

	sb.WriteString(hostname)
	sb.WriteString(" with ")
	sb.WriteString(transmissionType(sess))
	sb.WriteString(" id ")
	sb.WriteString(messageID)
	fmt.Fprintf(&sb, "\r\n for <%s>", recipient)
	if sess.TLS != nil {
		fmt.Fprintf(&sb, " (version=%s cipher=%s)", sess.TLS.Version, sess.TLS.Cipher)
	}
	sb.WriteString("; ")
	sb.WriteString(now.UTC().Format(receivedDateFormat))
	sb.WriteString("\r\n")

	return sb.String()
}

// deliveredTo builds the per-copy Delivered-To header carrying the recipient
// address exactly as declared, subaddress tag included.
func deliveredTo(recipient string) string {
	return "Delivered-To: " + recipient + "\r\n"
}

func heloOrUnknown(helo string) string {
	if helo == "" {
		return "unknown"
	}
	return helo
}

func transmissionType(sess *Session) string {
	if sess.TransmissionType != "" {
		return sess.TransmissionType
	}
	return "SMTP"
}

// remoteIP strips the port from a host:port remote address. Addresses
// without a port pass through unchanged.
func remoteIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if strings.HasPrefix(remoteAddr, "[") {
		// bracketed IPv6 with port, as net.TCPAddr renders it
		if end := strings.Index(remoteAddr, "]"); end > 0 {
			return remoteAddr[1:end]
		}
	}
	if i := strings.LastIndex(remoteAddr, ":"); i >= 0 && !strings.Contains(remoteAddr[:i], ":") {
		return remoteAddr[:i]
	}
	return remoteAddr
}
