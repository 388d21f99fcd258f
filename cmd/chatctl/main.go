// Command chatctl inspects and seeds a local badger message store.
//
//	chatctl messages        [-db path] [-a ID -b ID] [-limit n]
//	chatctl sessions put    [-db path] -domain user_expert -a U1 -b E1 [-status confirmed]
//	chatctl sessions list   [-db path] -domain user_expert -id U1
//	chatctl token           -id U1 -role user [-ttl 24h]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/shourk/messaging/backend/internal/auth"
	"github.com/shourk/messaging/backend/internal/model/chat"
	"github.com/shourk/messaging/backend/internal/storage/badgerstore"
)

const defaultDBPath = "data/messages"

var errUsage = errors.New("usage: chatctl messages | sessions put | sessions list | token")

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "messages":
		return listMessages(ctx, args[1:], out)
	case "sessions":
		if len(args) < 2 {
			return errUsage
		}
		switch args[1] {
		case "put":
			return putSession(ctx, args[2:], out)
		case "list":
			return listSessions(ctx, args[2:], out)
		}
		return errUsage
	case "token":
		return issueToken(args[1:], out)
	default:
		return errUsage
	}
}

func dbPathDefault() string {
	if p := os.Getenv("BADGER_PATH"); p != "" {
		return p
	}
	return defaultDBPath
}

func openStore(path string) (*badgerstore.Store, error) {
	return badgerstore.Open(path, zerolog.Nop())
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func listMessages(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	dbPath := fs.String("db", dbPathDefault(), "Path to badger DB")
	a := fs.String("a", "", "Only the conversation between -a and -b")
	b := fs.String("b", "", "Only the conversation between -a and -b")
	limit := fs.Int("limit", 100, "Maximum rows to print, newest last")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*a == "") != (*b == "") {
		return errors.New("-a and -b must be given together")
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var messages []chat.Message
	if *a != "" {
		messages, err = store.FindConversation(ctx, *a, *b)
	} else {
		messages, err = store.All(ctx)
	}
	if err != nil {
		return err
	}
	if *limit > 0 && len(messages) > *limit {
		messages = messages[len(messages)-*limit:]
	}

	table := newTable(out, "ID", "Domain", "From", "To", "Created", "Read", "Edited", "Text")
	for _, m := range messages {
		table.Append([]string{
			m.ID,
			string(m.Domain),
			m.SenderID,
			m.ReceiverID,
			m.CreatedAt.Format(time.RFC3339),
			strconv.FormatBool(m.Read),
			strconv.FormatBool(m.IsEdited),
			truncate(m.Text, 40),
		})
	}
	table.Render()
	return nil
}

func putSession(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sessions put", flag.ContinueOnError)
	dbPath := fs.String("db", dbPathDefault(), "Path to badger DB")
	domain := fs.String("domain", string(chat.DomainUserExpert), "user_expert or expert_expert")
	a := fs.String("a", "", "First participant id")
	b := fs.String("b", "", "Second participant id")
	status := fs.String("status", string(chat.SessionConfirmed), "pending, confirmed or cancelled")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sess := chat.Session{
		Domain:       chat.Domain(*domain),
		ParticipantA: *a,
		ParticipantB: *b,
		Status:       chat.SessionStatus(*status),
	}
	if err := store.PutSession(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s %s<->%s %s\n", sess.Domain, sess.ParticipantA, sess.ParticipantB, sess.Status)
	return nil
}

func listSessions(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sessions list", flag.ContinueOnError)
	dbPath := fs.String("db", dbPathDefault(), "Path to badger DB")
	domain := fs.String("domain", string(chat.DomainUserExpert), "user_expert or expert_expert")
	id := fs.String("id", "", "Participant id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-id is required")
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions(ctx, chat.Domain(*domain), *id)
	if err != nil {
		return err
	}

	table := newTable(out, "Domain", "Counterpart", "Status")
	for _, s := range sessions {
		other, _ := s.Counterpart(*id)
		table.Append([]string{string(s.Domain), other, string(s.Status)})
	}
	table.Render()
	return nil
}

func issueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	id := fs.String("id", "", "Participant id")
	role := fs.String("role", string(chat.RoleUser), "user or expert")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	secret := fs.String("secret", os.Getenv("ACCESS_TOKEN_SECRET"), "Signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("-secret or ACCESS_TOKEN_SECRET is required")
	}

	token, err := auth.NewIssuer(*secret, *ttl).Issue(*id, chat.Role(*role))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
