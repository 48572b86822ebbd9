package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/godilite/aiticket/internal/api/models"
	"github.com/godilite/aiticket/internal/session"
	"github.com/godilite/aiticket/internal/stats"
	"github.com/godilite/aiticket/internal/view"
	"github.com/godilite/aiticket/internal/workspace"
	"github.com/spf13/pflag"
)

var errNotSignedIn = errors.New("not signed in; run `aiticket login` first")

type env struct {
	ws  *workspace.Workspace
	in  io.Reader
	out io.Writer
	now func() time.Time

	reader *bufio.Reader
}

func (e *env) readLine(prompt string) (string, error) {
	if e.reader == nil {
		e.reader = bufio.NewReader(e.in)
	}
	fmt.Fprint(e.out, prompt)
	line, err := e.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (e *env) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

// monitor has no run func; main hands it to app.Run.
var commands = []command{
	{"login", "sign in with email and password", runLogin},
	{"register", "create an account and sign in", runRegister},
	{"logout", "sign out and forget the stored token", runLogout},
	{"whoami", "show the signed-in user", runWhoami},
	{"submit", "analyze an issue description and file it as a ticket", runSubmit},
	{"tickets", "list ticket history (--query, --priority)", runTickets},
	{"stats", "show dashboard statistics", runStats},
	{"rate", "rate a ticket: rate <id> <1-5>", runRate},
	{"export", "export all tickets as CSV", runExport},
	{"users", "list all users (administrators only)", runUsers},
	{"status", "check whether the backend is reachable", runStatus},
	{"monitor", "serve backend liveness as a gRPC health service", nil},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("aiticket "+name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// signedIn restores the previous session and fails when there is none.
func signedIn(ctx context.Context, e *env) (session.Session, error) {
	s, ok, err := e.ws.Start(ctx)
	if err != nil {
		return session.Session{}, err
	}
	if !ok {
		return session.Session{}, errNotSignedIn
	}
	return s, nil
}

func credentials(e *env, fs *pflag.FlagSet, email, password *string) error {
	var err error
	if *email == "" {
		if *email, err = e.readLine("Email: "); err != nil {
			return err
		}
	}
	if *password == "" {
		*password = os.Getenv("AITICKET_PASSWORD")
	}
	if *password == "" {
		if *password, err = e.readLine("Password: "); err != nil {
			return err
		}
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("%s: email and password are required", fs.Name())
	}
	return nil
}

func runLogin(ctx context.Context, e *env, args []string) error {
	var email, password string
	fs := newFlagSet("login")
	fs.StringVar(&email, "email", "", "account email")
	fs.StringVar(&password, "password", "", "account password (or AITICKET_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := credentials(e, fs, &email, &password); err != nil {
		return err
	}

	s, err := e.ws.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Signed in as %s <%s>\n", s.User.FullName, s.User.Email)
	return nil
}

func runRegister(ctx context.Context, e *env, args []string) error {
	var name, email, password string
	fs := newFlagSet("register")
	fs.StringVar(&name, "name", "", "full name")
	fs.StringVar(&email, "email", "", "account email")
	fs.StringVar(&password, "password", "", "account password (or AITICKET_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if name == "" {
		var err error
		if name, err = e.readLine("Full name: "); err != nil {
			return err
		}
	}
	if err := credentials(e, fs, &email, &password); err != nil {
		return err
	}

	s, err := e.ws.Register(ctx, name, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Welcome, %s. You are signed in.\n", s.User.FullName)
	return nil
}

func runLogout(ctx context.Context, e *env, _ []string) error {
	if err := e.ws.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Signed out.")
	return nil
}

func runWhoami(ctx context.Context, e *env, _ []string) error {
	s, err := signedIn(ctx, e)
	if err != nil {
		return err
	}
	role := "user"
	if s.User.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(e.out, "%s <%s> (%s, id %d)\n", s.User.FullName, s.User.Email, role, s.User.ID)
	return nil
}

func runSubmit(ctx context.Context, e *env, args []string) error {
	var yes bool
	var rating int
	fs := newFlagSet("submit")
	fs.BoolVarP(&yes, "yes", "y", false, "create the ticket without asking for confirmation")
	fs.IntVar(&rating, "rating", 0, "rate the new ticket right away (1-5)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := signedIn(ctx, e); err != nil {
		return err
	}

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		var err error
		if text, err = e.readLine("Describe your issue: "); err != nil {
			return err
		}
	}

	pending, err := e.ws.Analyze(ctx, text)
	if err != nil {
		return err
	}
	printAnalysis(e.out, pending.Title, pending.Category, pending.Priority, pending.ExtractedEntities)

	if !yes {
		answer, err := e.readLine("Create this ticket? [y/N] ")
		if err != nil {
			return err
		}
		if a := strings.ToLower(answer); a != "y" && a != "yes" {
			e.ws.DiscardAnalysis()
			fmt.Fprintln(e.out, "Discarded.")
			return nil
		}
	}

	created, ok, err := e.ws.Submit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	fmt.Fprintf(e.out, "Created ticket #%04d.\n", created.ID)

	if rating == 0 {
		e.ws.DismissReview()
		fmt.Fprintf(e.out, "Rate it later with: aiticket rate %d <1-5>\n", created.ID)
		return nil
	}
	if err := e.ws.Rate(ctx, rating); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Thanks for your feedback.")
	return nil
}

func printAnalysis(out io.Writer, title, category string, priority models.Priority, entities models.Entities) {
	fmt.Fprintf(out, "Title:    %s\n", title)
	fmt.Fprintf(out, "Category: %s\n", category)
	fmt.Fprintf(out, "Priority: %s\n", strings.ToUpper(string(priority)))
	if len(entities) == 0 {
		return
	}
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(out, "Entities:")
	for _, k := range keys {
		fmt.Fprintf(out, "  %s: %s\n", k, entities[k])
	}
}

func runTickets(ctx context.Context, e *env, args []string) error {
	var criteria view.Criteria
	fs := newFlagSet("tickets")
	fs.StringVarP(&criteria.Query, "query", "q", "", "match title, category or id")
	fs.StringVarP(&criteria.Priority, "priority", "p", view.AllPriorities, "low, medium, high or all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := signedIn(ctx, e); err != nil {
		return err
	}
	if _, err := e.ws.Refresh(ctx); err != nil {
		return err
	}

	list := e.ws.History(criteria)
	if len(list) == 0 {
		fmt.Fprintln(e.out, "No matching tickets found.")
		return nil
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRIORITY\tSTATUS\tRATING")
	for _, t := range list {
		rating := "-"
		if t.Rating != nil {
			rating = strconv.Itoa(*t.Rating)
		}
		fmt.Fprintf(tw, "#%04d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Title, t.Category, strings.ToUpper(string(t.Priority)), t.Status, rating)
	}
	return tw.Flush()
}

func runStats(ctx context.Context, e *env, _ []string) error {
	if _, err := signedIn(ctx, e); err != nil {
		return err
	}
	s := e.ws.Stats()

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total tickets\t%d\n", s.Total)
	fmt.Fprintf(tw, "Average rating\t%s\n", stats.FormatAverage(s.AverageRating))
	fmt.Fprintf(tw, "Median first response\t%s\n", stats.FormatResponseTime(s.MedianResponseSeconds))
	fmt.Fprintf(tw, "Automation rate\t%s\n", stats.FormatAutomationRate(s.AutomationRate))
	for _, c := range s.ByCategory {
		fmt.Fprintf(tw, "  category %s\t%d\n", c.Key, c.Count)
	}
	for _, c := range s.ByPriority {
		fmt.Fprintf(tw, "  priority %s\t%d\n", c.Key, c.Count)
	}
	return tw.Flush()
}

func runRate(ctx context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: aiticket rate <ticket-id> <1-5>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid ticket id %q", args[0])
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid rating %q", args[1])
	}
	if _, err := signedIn(ctx, e); err != nil {
		return err
	}

	e.ws.ReopenReview(id)
	if err := e.ws.Rate(ctx, rating); err != nil {
		e.ws.DismissReview()
		return err
	}
	fmt.Fprintf(e.out, "Rated ticket #%04d with %d/5.\n", id, rating)
	return nil
}

func runExport(ctx context.Context, e *env, args []string) error {
	var path string
	fs := newFlagSet("export")
	fs.StringVarP(&path, "out", "o", "", "output file (default aiticket-export-YYYY-MM-DD.csv, - for stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := signedIn(ctx, e); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := e.ws.Export(&buf); err != nil {
		return err
	}
	if path == "-" {
		_, err := e.out.Write(buf.Bytes())
		return err
	}
	if path == "" {
		path = view.ExportFileName(e.clock())
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(e.out, "Exported %d tickets to %s\n", len(e.ws.Tickets()), path)
	return nil
}

func runUsers(ctx context.Context, e *env, _ []string) error {
	if _, err := signedIn(ctx, e); err != nil {
		return err
	}
	users, err := e.ws.AdminUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tADMIN")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", u.ID, u.FullName, u.Email, u.IsAdmin)
	}
	return tw.Flush()
}

func runStatus(ctx context.Context, e *env, _ []string) error {
	if e.ws.Probe(ctx) {
		fmt.Fprintln(e.out, "System online")
	} else {
		fmt.Fprintln(e.out, "System offline")
	}
	return nil
}
