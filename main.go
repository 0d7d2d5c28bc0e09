package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/anot-platform/anot-client/internal/api"
	"github.com/anot-platform/anot-client/internal/config"
	"github.com/anot-platform/anot-client/internal/i18n"
	"github.com/anot-platform/anot-client/internal/logging"
	"github.com/anot-platform/anot-client/internal/payments"
	"github.com/anot-platform/anot-client/internal/plagiarism"
	"github.com/anot-platform/anot-client/internal/session"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

const usage = `usage: anot [flags] <command> [args]

commands:
  login [-phone P] [-password P]     sign in
  register -name N -surname S -phone P [-password P]
  logout                             end the session
  whoami                             show the signed-in profile
  language [uz|ru|en]                show or set the UI language
  services                           list purchasable services
  catalog <journals|journal ID|articles|soha-fields|applications|financial-report|writer-summary>
  soha-field-add NAME                add a field of science
  application-status ID STATUS       set an application to pending, approved or rejected
  plagiarism submit FILE             order a plagiarism check
  plagiarism list                    list checks, applying completed payments
  plagiarism reconcile               apply completed payments only
  plagiarism export -job ID [-kind certificate|report] [-out FILE]
  plagiarism remove -job ID
  serve-payments                     run the payment return listener

flags:
`

var errNotSignedIn = errors.New("not signed in; run `anot login` first")

type app struct {
	cfg     config.Config
	log     *zap.Logger
	store   *tokenstore.Handle
	client  *api.Client
	session *session.Manager
	loc     *i18n.Localizer
	ledger  *payments.Ledger
	checker *plagiarism.Checker
	out     io.Writer
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fs := flag.NewFlagSet("anot", flag.ExitOnError)
	fs.StringVar(&cfg.BaseURL, "api", cfg.BaseURL, "API base URL")
	store := fs.String("store", string(cfg.Store), "token store: memory, file or postgres")
	fs.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "file store location")
	fs.StringVar(&cfg.Language, "lang", cfg.Language, "UI language")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	cfg.Store = config.StoreKind(*store)

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	a, err := newApp(cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.store.Close()
	defer a.session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		logging.LogError(log, "cli", fs.Arg(0), err)
		fmt.Fprintln(os.Stderr, a.loc.ErrorMessage(err))
		os.Exit(1)
	}
}

func newApp(cfg config.Config, log *zap.Logger) (*app, error) {
	store, err := tokenstore.Open(tokenstore.Spec{
		Kind:        string(cfg.Store),
		Path:        cfg.StorePath,
		Passphrase:  cfg.StoreKey,
		DatabaseURL: cfg.DatabaseURL,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := api.New(cfg.BaseURL, store,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithLogger(log),
		api.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)
	sess := session.New(client, store,
		session.WithLogger(log),
		session.WithLogoutHandler(func() {
			fmt.Fprintln(os.Stderr, "signed out; run `anot login` to continue")
		}),
	)

	lang := sess.Language()
	if _, ok := store.Get(tokenstore.KeyLanguage); !ok {
		if l, err := i18n.Parse(cfg.Language); err == nil {
			lang = l
		}
	}

	ledger := payments.NewLedger(store, log)
	nav := plagiarism.NavigatorFunc(func(ctx context.Context, url string) error {
		fmt.Printf("Complete the payment at:\n  %s\n", url)
		return nil
	})
	checker := plagiarism.NewChecker(plagiarism.NewQueue(store, log), client, ledger,
		plagiarism.WithNavigator(nav),
		plagiarism.WithLogger(log),
		plagiarism.WithMaxPendingAge(cfg.JobMaxPendingAge),
	)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		client:  client,
		session: sess,
		loc:     i18n.New(lang),
		ledger:  ledger,
		checker: checker,
		out:     os.Stdout,
	}, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		a.session.Logout()
		return nil
	case "serve-payments":
		return a.servePayments(ctx)
	case "language":
		return a.language(args)
	}

	// Everything else needs a validated session.
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	if !a.session.IsAuthenticated() || a.session.User() == nil {
		return errNotSignedIn
	}

	switch cmd {
	case "whoami":
		return a.whoami()
	case "services":
		return a.services(ctx)
	case "catalog":
		return a.catalog(ctx, args)
	case "soha-field-add":
		return a.addSohaField(ctx, args)
	case "application-status":
		return a.applicationStatus(ctx, args)
	case "plagiarism":
		return a.plagiarism(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	phone := fs.String("phone", "", "phone number")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phone == "" {
		*phone = prompt("Phone: ")
	}
	if *password == "" {
		*password = promptSecret("Password: ")
	}
	a.session.Restore()

	u, err := a.session.Login(ctx, *phone, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", u.FullName(), a.loc.Role(u.Role))
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var profile api.RegisterRequest
	fs.StringVar(&profile.Name, "name", "", "first name")
	fs.StringVar(&profile.Surname, "surname", "", "last name")
	fs.StringVar(&profile.Phone, "phone", "", "phone number")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if profile.Name == "" || profile.Surname == "" || profile.Phone == "" {
		return errors.New(a.loc.Text(i18n.MsgMissingFields))
	}
	if *password == "" {
		*password = promptSecret("Password: ")
	}
	a.session.Restore()

	u, err := a.session.Register(ctx, profile, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered and signed in as %s\n", u.FullName())
	return nil
}

func (a *app) whoami() error {
	u := a.session.User()
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", u.ID)
	fmt.Fprintf(w, "name\t%s\n", u.FullName())
	fmt.Fprintf(w, "phone\t%s\n", u.Phone)
	fmt.Fprintf(w, "role\t%s\n", a.loc.Role(u.Role))
	fmt.Fprintf(w, "language\t%s\n", a.session.Language())
	return w.Flush()
}

func (a *app) language(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, a.session.Language())
		return nil
	}
	lang, err := i18n.Parse(args[0])
	if err != nil {
		return err
	}
	return a.session.SetLanguage(lang)
}

func (a *app) services(ctx context.Context) error {
	services, err := a.client.Services(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSLUG\tNAME\tPRICE\tACTIVE")
	for _, s := range services {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%t\n", s.ID, s.Slug, s.Name, s.PriceValue(), s.IsActive)
	}
	return w.Flush()
}

func (a *app) catalog(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("catalog: missing section")
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	switch args[0] {
	case "journals":
		journals, err := a.client.Journals(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tNAME\tISSN\tPUBLISHER")
		for _, j := range journals {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.Name, j.ISSN, j.Publisher)
		}
	case "journal":
		if len(args) < 2 {
			return errors.New("catalog journal: missing id")
		}
		j, err := a.client.Journal(ctx, api.ID(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "name\t%s\nissn\t%s\npublisher\t%s\ndescription\t%s\n", j.Name, j.ISSN, j.Publisher, j.Description)
	case "articles":
		articles, err := a.client.Articles(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tTITLE\tJOURNAL\tSUBMITTED\tSTATUS")
		for _, art := range articles {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", art.ID, art.Title, art.JournalName, art.SubmittedDate, a.loc.ArticleStatus(art.Status))
		}
	case "soha-fields":
		fields, err := a.client.SohaFields(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tNAME")
		for _, f := range fields {
			fmt.Fprintf(w, "%s\t%s\n", f.ID, f.Name)
		}
	case "applications":
		apps, err := a.client.Applications(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tAPPLICANT\tSUBMITTED\tSTATUS")
		for _, ap := range apps {
			name := ""
			if ap.User != nil {
				name = ap.User.FullName()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ap.ID, name, ap.SubmittedAt, a.loc.ApplicationStatus(ap.Status))
		}
	case "financial-report":
		report, err := a.client.FinancialReport(ctx)
		if err != nil {
			return err
		}
		printDocument(w, report)
	case "writer-summary":
		summary, err := a.client.WriterDashboardSummary(ctx)
		if err != nil {
			return err
		}
		printDocument(w, summary)
	default:
		return fmt.Errorf("catalog: unknown section %q", args[0])
	}
	return w.Flush()
}

func printDocument(w io.Writer, doc map[string]any) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%v\n", k, doc[k])
	}
}

func (a *app) addSohaField(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return errors.New(a.loc.Text(i18n.MsgMissingFields))
	}
	f, err := a.client.CreateSohaField(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s (%s)\n", f.Name, f.ID)
	return nil
}

func (a *app) applicationStatus(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("application-status: want ID STATUS")
	}
	ap, err := a.client.UpdateApplicationStatus(ctx, api.ID(args[0]), api.ApplicationStatus(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "application %s: %s\n", ap.ID, a.loc.ApplicationStatus(ap.Status))
	return nil
}

func (a *app) plagiarism(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("plagiarism: missing subcommand")
	}
	owner := a.session.User().ID.String()

	switch args[0] {
	case "submit":
		if len(args) < 2 {
			return plagiarism.ErrNoFile
		}
		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}
		job, err := a.checker.Submit(ctx, owner, plagiarism.File{Name: filepath.Base(args[1]), Content: content})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "check %s created, transaction %s\n", job.ID, job.MerchantTransactionID)
		return nil

	case "list", "reconcile":
		var (
			jobs []plagiarism.Job
			err  error
		)
		if args[0] == "list" {
			jobs, err = a.checker.Jobs(owner)
		} else {
			jobs, err = a.checker.Reconcile(owner)
		}
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tCREATED\tSTATUS\tORIGINALITY")
		for _, j := range jobs {
			originality := "-"
			if j.Result != nil {
				originality = fmt.Sprintf("%.2f%%", j.Result.OriginalityPercent)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.FileName, j.CreatedAt.Local().Format(time.DateTime), a.loc.JobStatus(j.Status), originality)
		}
		return w.Flush()

	case "export":
		fs := flag.NewFlagSet("plagiarism export", flag.ContinueOnError)
		id := fs.String("job", "", "job id or merchant transaction id")
		kindFlag := fs.String("kind", string(plagiarism.KindCertificate), "certificate or report")
		out := fs.String("out", "", "output file (default derived from the file name)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		kind, err := plagiarism.ParseKind(*kindFlag)
		if err != nil {
			return err
		}
		if _, err := a.checker.Jobs(owner); err != nil {
			return err
		}
		job, ok := a.checker.Job(owner, *id)
		if !ok {
			return fmt.Errorf("no check %q", *id)
		}
		path := *out
		if path == "" {
			base := strings.TrimSuffix(job.FileName, filepath.Ext(job.FileName))
			path = fmt.Sprintf("%s-%s.pdf", base, kind)
		}
		return a.export(ctx, job, kind, path)

	case "remove":
		fs := flag.NewFlagSet("plagiarism remove", flag.ContinueOnError)
		id := fs.String("job", "", "job id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		ok, err := a.checker.Remove(owner, *id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no check %q", *id)
		}
		return nil
	}
	return fmt.Errorf("plagiarism: unknown subcommand %q", args[0])
}

func (a *app) export(ctx context.Context, job plagiarism.Job, kind plagiarism.Kind, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := plagiarism.RenderArtifact(ctx, f, job, kind, a.session.User().FullName()); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", path)
	return nil
}

func (a *app) servePayments(ctx context.Context) error {
	h := payments.NewHandler(a.ledger, a.log)
	srv := &http.Server{
		Addr:              a.cfg.PaymentAddr,
		Handler:           payments.SetupRoutes(h, a.cfg.AllowedOrigins, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.log.Info("payment return listener started", zap.String("addr", a.cfg.PaymentAddr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func prompt(label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line)
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(label string) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(b)
}
