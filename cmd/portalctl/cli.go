package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"madrasah/internal/attendance"
	"madrasah/internal/dispatch"
	"madrasah/internal/enrollment"
	"madrasah/internal/feedback"
	"madrasah/internal/notification"
	"madrasah/internal/optimistic"
	"madrasah/internal/resource"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	client *dispatch.Client
	tray   *feedback.Tray
	out    io.Writer
	read   func(name string) ([]byte, error)
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  attendance mark -schedule ID -student ID -status STATUS")
	fmt.Fprintln(cli.out, "  attendance mark-all -schedule ID -students ID,ID,... [-status STATUS]")
	fmt.Fprintln(cli.out, "  enrollment submit -class ID -students ID,ID,... [-type TYPE]")
	fmt.Fprintln(cli.out, "  enrollment approve|reject|withdraw -class ID -student ID")
	fmt.Fprintln(cli.out, "  notifications list | read -id ID | read-all | watch")
	fmt.Fprintln(cli.out, "  resources list [-class ID] | toggle -id ID | rename -id ID -title T | delete -id ID")
	fmt.Fprintln(cli.out, "  resources link -title T -url URL [-class ID] [-public]")
	fmt.Fprintln(cli.out, "  resources upload -file PATH [-title T] [-class ID] [-public]")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 3 {
		cli.printUsage()
		return errHelp
	}
	cli.tray.Subscribe(func(t optimistic.Toast) {
		line := fmt.Sprintf("[%s] %s", t.Level, t.Message)
		if t.Description != "" {
			line += ": " + t.Description
		}
		fmt.Fprintln(cli.out, line)
	})

	group, cmd, rest := args[1], args[2], args[3:]
	switch group {
	case "attendance":
		return cli.attendance(ctx, cmd, rest)
	case "enrollment":
		return cli.enrollment(ctx, cmd, rest)
	case "notifications":
		return cli.notifications(ctx, cmd, rest)
	case "resources":
		return cli.resources(ctx, cmd, rest)
	}
	cli.printUsage()
	return errHelp
}

func (cli *commandLine) attendance(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet("attendance "+cmd, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	schedule := fs.String("schedule", "", "schedule id")
	student := fs.String("student", "", "student id")
	students := fs.String("students", "", "comma separated student ids")
	status := fs.String("status", string(attendance.StatusPresent), "PRESENT, LATE, ABSENT or EXCUSED")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schedule == "" {
		fs.Usage()
		return errHelp
	}

	var recs []attendance.Record
	if err := cli.client.Fetch(ctx, "/v1/attendance/"+url.PathEscape(*schedule), &recs); err != nil {
		return err
	}
	term := attendance.NewTerminal(*schedule, recs, cli.client.For(attendance.Entity), optimistic.WithNotifier(cli.tray))

	var res optimistic.Result
	switch cmd {
	case "mark":
		if *student == "" {
			fs.Usage()
			return errHelp
		}
		res = term.Mark(ctx, *student, attendance.Status(strings.ToUpper(*status)))
	case "mark-all":
		ids := splitList(*students)
		if len(ids) == 0 {
			fs.Usage()
			return errHelp
		}
		res = term.MarkAll(ctx, ids, attendance.Status(strings.ToUpper(*status)))
	default:
		cli.printUsage()
		return errHelp
	}

	sum := term.Summary()
	fmt.Fprintf(cli.out, "present %d, late %d, absent %d, excused %d of %d\n",
		sum.Present, sum.Late, sum.Absent, sum.Excused, sum.Total)
	return resultErr(res)
}

func (cli *commandLine) enrollment(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet("enrollment "+cmd, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	class := fs.String("class", "", "class id")
	student := fs.String("student", "", "student id")
	students := fs.String("students", "", "comma separated student ids")
	typ := fs.String("type", string(enrollment.TypeRegular), "REGULAR, TRANSFER or TRIAL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *class == "" {
		fs.Usage()
		return errHelp
	}

	var cands []enrollment.Candidate
	if err := cli.client.Fetch(ctx, "/v1/enrollment/"+url.PathEscape(*class), &cands); err != nil {
		return err
	}
	term := enrollment.NewTerminal(*class, cands, cli.client.For(enrollment.Entity), optimistic.WithNotifier(cli.tray))

	var res optimistic.Result
	switch cmd {
	case "submit":
		term.Pool().SelectAll(splitList(*students))
		if term.Pool().Len() == 0 {
			fs.Usage()
			return errHelp
		}
		res = term.SubmitPool(ctx, enrollment.Type(strings.ToUpper(*typ)))
	case "approve", "reject", "withdraw":
		if *student == "" {
			fs.Usage()
			return errHelp
		}
		switch cmd {
		case "approve":
			res = term.Approve(ctx, *student)
		case "reject":
			res = term.Reject(ctx, *student)
		default:
			res = term.Withdraw(ctx, *student)
		}
	default:
		cli.printUsage()
		return errHelp
	}

	for _, c := range term.Candidates() {
		fmt.Fprintf(cli.out, "%s\t%s\t%s\n", c.StudentID, c.Type, c.Status)
	}
	return resultErr(res)
}

func (cli *commandLine) notifications(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet("notifications "+cmd, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	id := fs.String("id", "", "notification id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var items []notification.Item
	if err := cli.client.Fetch(ctx, "/v1/notifications", &items); err != nil {
		return err
	}
	userID, err := subject(cli.client.Token)
	if err != nil {
		return err
	}
	bell := notification.NewBell(userID, items, cli.client.For(notification.Entity), optimistic.WithNotifier(cli.tray))

	switch cmd {
	case "list":
		cli.printItems(bell)
		return nil
	case "read":
		if *id == "" {
			fs.Usage()
			return errHelp
		}
		res := bell.MarkRead(ctx, *id)
		cli.printItems(bell)
		return resultErr(res)
	case "read-all":
		res := bell.MarkAllRead(ctx)
		cli.printItems(bell)
		return resultErr(res)
	case "watch":
		return cli.watch(ctx, bell)
	}
	cli.printItems(bell)
	cli.printUsage()
	return errHelp
}

func (cli *commandLine) printItems(bell *notification.Bell) {
	for _, it := range bell.Items() {
		mark := " "
		if !it.IsRead {
			mark = "*"
		}
		fmt.Fprintf(cli.out, "%s %s\t%s\t%s\n", mark, it.ID, it.Type, it.Title)
	}
	fmt.Fprintf(cli.out, "%d unread\n", bell.UnreadCount())
}

// watch prints every pushed notification until ctx ends.
func (cli *commandLine) watch(ctx context.Context, bell *notification.Bell) error {
	wsURL, err := websocketURL(cli.client.BaseURL + "/v1/ws")
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cli.client.Token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	fmt.Fprintf(cli.out, "watching, %d unread\n", bell.UnreadCount())
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var push notification.Push
		if err := json.Unmarshal(raw, &push); err != nil || push.Type != notification.MessageType {
			continue
		}
		if bell.Receive(push.Item) {
			fmt.Fprintf(cli.out, "* %s\t%s\t%s (%d unread)\n", push.Item.ID, push.Item.Type, push.Item.Title, bell.UnreadCount())
		}
	}
}

func (cli *commandLine) resources(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet("resources "+cmd, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	id := fs.String("id", "", "resource id")
	title := fs.String("title", "", "resource title")
	link := fs.String("url", "", "link target")
	class := fs.String("class", "", "class id")
	file := fs.String("file", "", "file to upload")
	public := fs.Bool("public", false, "visible to parents and students")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd == "upload" {
		return cli.upload(ctx, fs, *file, *title, *class, *public)
	}

	path := "/v1/resources"
	if *class != "" {
		path += "?class_id=" + url.QueryEscape(*class)
	}
	var recs []resource.Record
	if err := cli.client.Fetch(ctx, path, &recs); err != nil {
		return err
	}
	term := resource.NewTerminal(recs, cli.client.For(resource.Entity), optimistic.WithNotifier(cli.tray))

	var res optimistic.Result
	switch cmd {
	case "list":
	case "link":
		res = term.AddLink(ctx, *title, *link, *class, *public)
	case "toggle", "rename", "delete":
		if *id == "" {
			fs.Usage()
			return errHelp
		}
		switch cmd {
		case "toggle":
			res = term.TogglePublic(ctx, *id)
		case "rename":
			res = term.Rename(ctx, *id, *title)
		default:
			res = term.Delete(ctx, *id)
		}
	default:
		cli.printUsage()
		return errHelp
	}

	for _, r := range term.Records() {
		fmt.Fprintf(cli.out, "%s\t%s\t%s\tpublic=%t\tv%d\n", r.ID, r.Type, r.Title, r.IsPublic, r.Version)
	}
	if cmd == "list" {
		return nil
	}
	return resultErr(res)
}

func (cli *commandLine) upload(ctx context.Context, fs *flag.FlagSet, file, title, class string, public bool) error {
	if file == "" {
		fs.Usage()
		return errHelp
	}
	data, err := cli.read(file)
	if err != nil {
		return err
	}
	name := filepath.Base(file)
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	var rec resource.Record
	err = cli.client.Upload(ctx, "/v1/resources/upload", map[string]string{
		"title":     title,
		"class_id":  class,
		"is_public": strconv.FormatBool(public),
	}, name, data, &rec)
	if err != nil {
		cli.tray.Notify(optimistic.Toast{Level: optimistic.LevelError, Message: "Upload failed", Description: err.Error(), Kind: optimistic.KindOf(err)})
		return err
	}
	cli.tray.Notify(optimistic.Toast{Level: optimistic.LevelSuccess, Message: "Uploaded " + rec.Title})
	fmt.Fprintf(cli.out, "%s\t%s\t%s\n", rec.ID, rec.Type, rec.FileURL)
	return nil
}

func resultErr(res optimistic.Result) error {
	if res.OK() {
		return nil
	}
	if res.Err == nil {
		return fmt.Errorf("mutation %s", res.State)
	}
	return res.Err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// subject reads the user id from the token. The server verifies the
// signature, so it is not checked here.
func subject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
