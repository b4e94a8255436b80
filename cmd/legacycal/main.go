// Command legacycal is a terminal client for the Legacy Calendar service:
// it authenticates, shows the month grid, mutates events and keeps the
// local list fresh in watch mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iQuickDev/legacy-calendar-client/internal/calendar"
	"github.com/iQuickDev/legacy-calendar-client/internal/config"
	"github.com/iQuickDev/legacy-calendar-client/internal/credstore"
	"github.com/iQuickDev/legacy-calendar-client/internal/ics"
	"github.com/iQuickDev/legacy-calendar-client/internal/logging"
	"github.com/iQuickDev/legacy-calendar-client/internal/model"
	"github.com/iQuickDev/legacy-calendar-client/internal/notify"
	"github.com/iQuickDev/legacy-calendar-client/internal/store"
	"github.com/iQuickDev/legacy-calendar-client/internal/transport"
)

const usage = `usage: legacycal [flags] <command> [args]

commands:
  login -user <name> [-pass <password>]   authenticate and persist the token
  logout                                  clear session and credentials
  whoami                                  show the authenticated profile
  month [-ref YYYY-MM]                    print the month grid
  day <YYYY-MM-DD>                        list events on a day
  create -title <t> -start <RFC3339> [-end <RFC3339>] [-open] [-desc <d>] [-loc <l>]
  delete <event-id>                       delete an event
  join <event-id> [-wants food,weed,sleep,alcohol]
  leave <event-id>                        withdraw from an event
  export [-ref YYYY-MM] [-out <file>]     export events as iCalendar
  bypass [-clear | <token>]               manage the bypass token
  subscribe                               register for push notifications
  watch                                   keep refreshing on the configured schedule
`

type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	session *store.SessionRepository
	events  *store.EventRepository
	client  *transport.Client
	creds   *credstore.FileStore
	facade  *calendar.Facade
}

func main() {
	// Env file is optional; flags and the config file cover everything.
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	logLevel := flag.String("log-level", "", "override configured log level")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "legacycal: load config: %v\n", err)
		os.Exit(1)
	}
	if v := os.Getenv("LEGACYCAL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.Setup(level)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(cfg, logger)
	if err := a.run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "legacycal: %v\n", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger zerolog.Logger) *app {
	creds := credstore.NewFileStore(cfg.CredentialsPath)
	client := transport.NewClient(cfg.BaseURL, logger)
	session := store.NewSessionRepository(client, creds, logger)
	client.SetTokenSource(session)
	events := store.NewEventRepository(client, logger)

	facade := calendar.NewFacade(events)
	events.Subscribe(facade.EventsChanged)

	return &app{
		cfg:     cfg,
		log:     logger,
		session: session,
		events:  events,
		client:  client,
		creds:   creds,
		facade:  facade,
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	// Every command except login starts from whatever session was
	// persisted by an earlier run.
	if command != "login" {
		a.session.LoadPersisted(ctx)
	}

	switch command {
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		a.session.Logout(ctx)
		fmt.Println("logged out")
		return nil
	case "whoami":
		return a.cmdWhoami()
	case "month":
		return a.cmdMonth(ctx, args)
	case "day":
		return a.cmdDay(ctx, args)
	case "create":
		return a.cmdCreate(ctx, args)
	case "delete":
		return a.cmdDelete(ctx, args)
	case "join":
		return a.cmdJoin(ctx, args)
	case "leave":
		return a.cmdLeave(ctx, args)
	case "export":
		return a.cmdExport(ctx, args)
	case "bypass":
		return a.cmdBypass(args)
	case "subscribe":
		return a.cmdSubscribe(ctx)
	case "watch":
		return a.cmdWatch(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("user", "", "username")
	pass := fs.String("pass", "", "password (prompted when omitted)")
	fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("login requires -user")
	}
	password := *pass
	if password == "" {
		fmt.Print("password: ")
		if _, err := fmt.Scanln(&password); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	if !a.session.Login(ctx, model.Credentials{Username: *user, Password: password}) {
		return fmt.Errorf("%s", a.session.Err())
	}
	fmt.Printf("logged in as %s\n", a.session.Session().User.Username)
	return nil
}

func (a *app) cmdWhoami() error {
	if !a.session.IsAuthenticated() {
		return store.ErrNotAuthenticated
	}
	u := a.session.Session().User
	fmt.Printf("#%d %s\n", u.ID, u.Username)
	return nil
}

func (a *app) cmdMonth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("month", flag.ExitOnError)
	ref := fs.String("ref", "", "month to show as YYYY-MM (default: current)")
	fs.Parse(args)

	if !a.events.FetchAll(ctx) {
		return fmt.Errorf("%s", a.events.Err())
	}
	if err := a.moveCursor(*ref); err != nil {
		return err
	}
	a.printMonth()
	return nil
}

func (a *app) cmdDay(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("day requires a YYYY-MM-DD argument")
	}
	date, err := time.ParseInLocation("2006-01-02", args[0], a.cfg.Location())
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}

	if !a.events.FetchAll(ctx) {
		return fmt.Errorf("%s", a.events.Err())
	}
	for _, ev := range a.events.ByDate(date) {
		printEvent(ev)
	}
	return nil
}

func (a *app) cmdCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	title := fs.String("title", "", "event title")
	desc := fs.String("desc", "", "description")
	loc := fs.String("loc", "", "location")
	start := fs.String("start", "", "start time (RFC 3339)")
	end := fs.String("end", "", "end time (RFC 3339)")
	open := fs.Bool("open", false, "open to join without an invite")
	fs.Parse(args)

	draft := model.EventDraft{
		Title:       *title,
		Description: *desc,
		Location:    *loc,
		IsOpen:      *open,
	}
	var err error
	if *start != "" {
		if draft.StartTime, err = time.Parse(time.RFC3339, *start); err != nil {
			return fmt.Errorf("parse -start: %w", err)
		}
	}
	if *end != "" {
		if draft.EndTime, err = time.Parse(time.RFC3339, *end); err != nil {
			return fmt.Errorf("parse -end: %w", err)
		}
	}

	if !a.events.Create(ctx, draft) {
		return fmt.Errorf("%s", a.events.Err())
	}
	fmt.Println("event created")
	return nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	id, err := eventID(args)
	if err != nil {
		return err
	}
	if !a.events.Remove(ctx, id) {
		return fmt.Errorf("%s", a.events.Err())
	}
	fmt.Println("event deleted")
	return nil
}

func (a *app) cmdJoin(ctx context.Context, args []string) error {
	id, err := eventID(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("join", flag.ExitOnError)
	wants := fs.String("wants", "", "comma-separated wants: food,weed,sleep,alcohol")
	fs.Parse(args[1:])

	var draft *model.ParticipationDraft
	if *wants != "" {
		draft = &model.ParticipationDraft{}
		for _, w := range strings.Split(*wants, ",") {
			draft.Features = append(draft.Features, model.Feature(strings.ToUpper(strings.TrimSpace(w))))
		}
	}

	if !a.events.Join(ctx, id, draft) {
		return fmt.Errorf("%s", a.events.Err())
	}
	fmt.Println("joined")
	return nil
}

func (a *app) cmdLeave(ctx context.Context, args []string) error {
	id, err := eventID(args)
	if err != nil {
		return err
	}
	if !a.events.Leave(ctx, id) {
		return fmt.Errorf("%s", a.events.Err())
	}
	fmt.Println("left")
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	ref := fs.String("ref", "", "restrict to one month (YYYY-MM)")
	out := fs.String("out", "", "output file (default: stdout)")
	fs.Parse(args)

	if !a.events.FetchAll(ctx) {
		return fmt.Errorf("%s", a.events.Err())
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if *ref != "" {
		reference, err := time.ParseInLocation("2006-01", *ref, a.cfg.Location())
		if err != nil {
			return fmt.Errorf("parse -ref: %w", err)
		}
		return ics.ExportMonth(w, a.events.Snapshot(), reference)
	}
	return ics.Export(w, a.events.Snapshot())
}

func (a *app) cmdBypass(args []string) error {
	if len(args) == 1 && args[0] == "-clear" {
		if err := a.session.ClearBypassToken(); err != nil {
			return err
		}
		fmt.Println("bypass token cleared")
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("bypass requires a token argument or -clear")
	}
	if err := a.session.SetBypassToken(args[0]); err != nil {
		return err
	}
	fmt.Println("bypass token set")
	return nil
}

func (a *app) cmdSubscribe(ctx context.Context) error {
	registrar := notify.NewRegistrar(a.client, a.creds, a.log)
	token, err := registrar.Register(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("subscribed with device token %s\n", token)
	return nil
}

func (a *app) cmdWatch(ctx context.Context) error {
	a.facade.Subscribe(a.printMonth)
	if !a.events.FetchAll(ctx) {
		a.log.Warn().Str("error", a.events.Err()).Msg("initial fetch failed, will retry on schedule")
	}

	c := cron.New()
	if _, err := c.AddFunc(a.cfg.RefreshCron, func() {
		a.events.FetchAll(ctx)
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", a.cfg.RefreshCron, err)
	}
	c.Start()
	a.log.Info().Str("schedule", a.cfg.RefreshCron).Msg("watching for changes")

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	a.log.Info().Msg("watch stopped")
	return nil
}

func (a *app) moveCursor(ref string) error {
	if ref == "" {
		return nil
	}
	reference, err := time.ParseInLocation("2006-01", ref, a.cfg.Location())
	if err != nil {
		return fmt.Errorf("parse -ref: %w", err)
	}
	year, month := a.facade.Month()
	for year*12+int(month) < reference.Year()*12+int(reference.Month()) {
		a.facade.NextMonth()
		year, month = a.facade.Month()
	}
	for year*12+int(month) > reference.Year()*12+int(reference.Month()) {
		a.facade.PrevMonth()
		year, month = a.facade.Month()
	}
	return nil
}

func (a *app) printMonth() {
	year, month := a.facade.Month()
	days := a.facade.Days()

	fmt.Printf("\n    %s %d\n", month, year)
	fmt.Println("  Mo   Tu   We   Th   Fr   Sa   Su")
	for i, day := range days {
		cell := fmt.Sprintf("%4d", day.Date.Day())
		if !day.IsCurrentMonth {
			cell = "   ."
		}
		if day.IsToday {
			cell = fmt.Sprintf("[%2d]", day.Date.Day())
		}
		if len(day.Events) > 0 {
			cell += "*"
		} else {
			cell += " "
		}
		fmt.Print(cell)
		if (i+1)%7 == 0 {
			fmt.Println()
		}
	}

	fmt.Println()
	for _, day := range days {
		if !day.IsCurrentMonth || len(day.Events) == 0 {
			continue
		}
		fmt.Printf("%s:\n", day.Date.Format("Mon 02 Jan"))
		for _, ev := range day.Events {
			printEvent(ev)
		}
	}
}

func printEvent(ev model.Event) {
	line := fmt.Sprintf("  #%-4d %s  %s", ev.ID, ev.StartTime.Format("15:04"), ev.Title)
	if ev.Location != "" {
		line += " @ " + ev.Location
	}
	if ev.IsOpen {
		line += " (open)"
	}
	if n := len(ev.Participants); n > 0 {
		line += fmt.Sprintf(" [%d going]", n)
	}
	for _, f := range ev.Features {
		for _, info := range model.Features {
			if info.ID == f {
				line += " " + info.Icon
			}
		}
	}
	fmt.Println(line)
}

func eventID(args []string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("an event id is required")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("parse event id %q: %w", args[0], err)
	}
	return id, nil
}

func defaultConfigPath() string {
	if v := os.Getenv("LEGACYCAL_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return home + "/.config/legacycal/config.yaml"
}
