package transport

import (
	"bufio"
	"fmt"
	"net"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
)

// NDB-login negotiation (spec §4.F.2): client sends "ndbd", "ndbd passwd",
// expects "ok", then sends "<my_id> <other_id>" and expects "1 1"; the
// server side is symmetric.

func clientLogin(conn net.Conn, myID, otherID uint32) error {
	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)

	if _, err := fmt.Fprintf(w, "ndbd\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "ndbd passwd\n"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	if trimCRLF(line) != "ok" {
		return icerr.New(icerr.AuthenticateError, "unexpected login reply %q", line)
	}

	if _, err := fmt.Fprintf(w, "%d %d\n", myID, otherID); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	line, err = r.ReadString('\n')
	if err != nil {
		return err
	}
	if trimCRLF(line) != "1 1" {
		return icerr.New(icerr.AuthenticateError, "login id exchange mismatch: %q", line)
	}
	return nil
}

func serverLogin(conn net.Conn) (myID, otherID uint32, err error) {
	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	if err != nil {
		return 0, 0, err
	}
	if trimCRLF(line) != "ndbd" {
		return 0, 0, icerr.New(icerr.AuthenticateError, "expected \"ndbd\", got %q", line)
	}
	line, err = r.ReadString('\n')
	if err != nil {
		return 0, 0, err
	}
	if trimCRLF(line) != "ndbd passwd" {
		return 0, 0, icerr.New(icerr.AuthenticateError, "expected \"ndbd passwd\", got %q", line)
	}
	if _, err := fmt.Fprintf(w, "ok\n"); err != nil {
		return 0, 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, 0, err
	}

	line, err = r.ReadString('\n')
	if err != nil {
		return 0, 0, err
	}
	var remoteID, serverID uint32
	if _, err := fmt.Sscanf(trimCRLF(line), "%d %d", &remoteID, &serverID); err != nil {
		return 0, 0, icerr.Wrap(icerr.AuthenticateError, err, "malformed login id line %q", line)
	}
	if _, err := fmt.Fprintf(w, "1 1\n"); err != nil {
		return 0, 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, 0, err
	}
	// From the server's perspective the remote side's my_id is the peer
	// (otherID) and the server id it names is this side's own id (myID).
	return serverID, remoteID, nil
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
