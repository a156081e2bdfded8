package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/config"
	"github.com/btouchard/sprintdesk/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync <project-id>",
	Short: "Run one sync pass for a project",
	Long: `Mirror the GitHub issues of a project's linked repository, acting as the
given user. The user's GitHub grant is used (and refreshed) when present;
otherwise the repository is read anonymously.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage API sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a bearer session token for a user",
	Args:  cobra.NoArgs,
	RunE:  runSessionCreate,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a student or teacher account",
	Args:  cobra.NoArgs,
	RunE:  runUserCreate,
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the session key",
}

var secretRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Replace the session key, signing every user out",
	Args:  cobra.NoArgs,
	RunE:  runSecretRotate,
}

func init() {
	syncCmd.Flags().String("user", "", "user ID to act as")
	_ = syncCmd.MarkFlagRequired("user")

	sessionCreateCmd.Flags().String("user", "", "user ID")
	_ = sessionCreateCmd.MarkFlagRequired("user")
	sessionCmd.AddCommand(sessionCreateCmd)

	userCreateCmd.Flags().String("name", "", "display name")
	userCreateCmd.Flags().String("email", "", "email address")
	userCreateCmd.Flags().String("role", string(auth.RoleStudent), "student or teacher (default teacher for auth.teacher_emails)")
	userCreateCmd.Flags().String("class", "", "class ID (students only)")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userCreateCmd)

	secretCmd.AddCommand(secretRotateCmd)
}

// openCLI loads the configuration and the service graph for a one-shot command.
func openCLI() (*config.Config, *app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	setupLogging(cfg)
	a, err := openApp(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, a, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	_, a, err := openCLI()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	p, err := principalFor(a.store, userID)
	if err != nil {
		return err
	}
	project, _, err := a.access.RequireProject(p, args[0])
	if err != nil {
		return fmt.Errorf("project %s: %w", args[0], err)
	}
	if !project.HasRepository() {
		return fmt.Errorf("project %s has no linked repository", project.ID)
	}

	token, err := a.tokens.ValidToken(ctx, userID)
	if err != nil {
		return err
	}
	res, err := a.engine.SyncProject(ctx, project.ID, project.RepositoryOwner, project.RepositoryName, token)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("sync degraded: %s", res.Error)
	}
	return nil
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	cfg, a, err := openCLI()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	secret, err := auth.LoadOrCreateSecret(config.ExpandHome(cfg.Auth.KeyDir))
	if err != nil {
		return fmt.Errorf("loading session key: %w", err)
	}
	tok, expires, err := auth.NewSessions(a.store, secret, cfg.Auth.SessionTTL).Create(userID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format("2006-01-02 15:04 MST"))
	return nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	roleFlag, _ := cmd.Flags().GetString("role")
	classID, _ := cmd.Flags().GetString("class")

	role, err := auth.ParseRole(roleFlag)
	if err != nil {
		return err
	}

	cfg, a, err := openCLI()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !cmd.Flags().Changed("role") && cfg.Auth.IsTeacherEmail(email) {
		role = auth.RoleTeacher
	}
	if role == auth.RoleTeacher && classID != "" {
		return fmt.Errorf("teachers are linked to classes, not members of one")
	}

	u := &store.User{Name: name, Email: email, Role: string(role), ClassID: classID}
	if err := a.store.CreateUser(u); err != nil {
		return err
	}
	fmt.Println(u.ID)
	return nil
}

func runSecretRotate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if _, err := auth.RotateSecret(config.ExpandHome(cfg.Auth.KeyDir)); err != nil {
		return err
	}
	fmt.Println("session key rotated; existing sessions are no longer valid")
	return nil
}

func principalFor(st store.Store, userID string) (auth.Principal, error) {
	u, err := st.GetUser(userID)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("user %s: %w", userID, err)
	}
	role, err := auth.ParseRole(u.Role)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: u.ID, Role: role}, nil
}
