package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinicdesk/cmd/mainconfig"
	"github.com/wolfman30/clinicdesk/internal/auth"
	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/masterdata"
	"github.com/wolfman30/clinicdesk/internal/rbac"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

type options struct {
	orgID         string
	all           bool
	createOrg     string
	adminEmail    string
	adminPassword string
	adminName     string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.StringVar(&opts.orgID, "org", "", "organization id to seed")
	fs.BoolVar(&opts.all, "all", false, "seed every organization")
	fs.StringVar(&opts.createOrg, "create-org", "", "create an organization with this name, then seed it")
	fs.StringVar(&opts.adminEmail, "admin-email", "", "email of the first admin user (with -create-org)")
	fs.StringVar(&opts.adminPassword, "admin-password", "", "password of the first admin user (with -create-org)")
	fs.StringVar(&opts.adminName, "admin-name", "Administrator", "full name of the first admin user")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	modes := 0
	for _, set := range []bool{opts.orgID != "", opts.all, opts.createOrg != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return opts, errors.New("exactly one of -org, -all or -create-org is required")
	}
	if opts.createOrg != "" && (opts.adminEmail == "") != (opts.adminPassword == "") {
		return opts, errors.New("-admin-email and -admin-password go together")
	}
	if opts.adminPassword != "" {
		if err := auth.CheckPassword(opts.adminPassword); err != nil {
			return opts, fmt.Errorf("-admin-password: %w", err)
		}
	}
	return opts, nil
}

func main() {
	mainconfig.LoadEnv()
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := run(ctx, pool, opts, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, pool database.Pool, opts options, logger *logging.Logger) error {
	seeder := masterdata.NewSeeder(pool, nil, logger)
	roles := rbac.NewRepository(pool)

	var orgIDs []string
	switch {
	case opts.createOrg != "":
		orgID, err := createOrganization(ctx, pool, opts.createOrg)
		if err != nil {
			return err
		}
		logger.Info("organization created", "org_id", orgID, "name", opts.createOrg)
		orgIDs = []string{orgID}
	case opts.all:
		ids, err := seeder.Organizations(ctx)
		if err != nil {
			return err
		}
		orgIDs = ids
	default:
		orgIDs = []string{opts.orgID}
	}

	for _, orgID := range orgIDs {
		created, err := roles.SeedDefaultRoles(ctx, orgID)
		if err != nil {
			return fmt.Errorf("org %s: %w", orgID, err)
		}
		results, err := seeder.Seed(ctx, orgID)
		if err != nil {
			return fmt.Errorf("org %s: %w", orgID, err)
		}
		for _, res := range results {
			fmt.Printf("%s\t%-18s inserted=%d skipped=%t\n", orgID, res.Unit, res.Inserted, res.Skipped)
		}
		fmt.Printf("%s\t%-18s inserted=%d\n", orgID, "roles", created)
	}

	if opts.createOrg != "" && opts.adminEmail != "" {
		return createAdmin(ctx, pool, roles, orgIDs[0], opts, logger)
	}
	return nil
}

func createOrganization(ctx context.Context, pool database.Pool, name string) (string, error) {
	var id string
	if err := pool.QueryRow(ctx, `INSERT INTO organizations (name) VALUES ($1) RETURNING id`, strings.TrimSpace(name)).Scan(&id); err != nil {
		return "", fmt.Errorf("create organization: %w", err)
	}
	return id, nil
}

func createAdmin(ctx context.Context, pool database.Pool, roles *rbac.Repository, orgID string, opts options, logger *logging.Logger) error {
	svc := auth.NewService(auth.NewUserRepository(pool), nil, nil, logger)
	user, err := svc.CreateUser(ctx, orgID, &auth.CreateUserRequest{
		Email:    opts.adminEmail,
		Password: opts.adminPassword,
		FullName: opts.adminName,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	list, err := roles.ListRoles(ctx, orgID)
	if err != nil {
		return err
	}
	for _, role := range list {
		if role.Name == rbac.RoleAdmin {
			if err := roles.SetUserRoles(ctx, orgID, user.ID, []string{role.ID}); err != nil {
				return fmt.Errorf("assign admin role: %w", err)
			}
			fmt.Printf("%s\tadmin user %s created\n", orgID, user.Email)
			return nil
		}
	}
	return fmt.Errorf("admin role missing for org %s", orgID)
}
