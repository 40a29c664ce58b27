package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"dds-go/internal/app"
	"dds-go/internal/auth"
	"dds-go/internal/config"
	"dds-go/internal/dds"
	"dds-go/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a DDSApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Reconcile", "UploadCreate").
func newApp(ctx context.Context, operation string) (*app.DDSApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewDDSApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// principalContext attaches the --agent flag's agent to the context so
// mutations are attributed to it.
func principalContext(cmd *cobra.Command, a *app.DDSApp) (context.Context, error) {
	agentID, _ := cmd.Flags().GetString("agent")
	return a.AsPrincipal(cmd.Context(), agentID)
}

var rootCmd = &cobra.Command{
	Use:   "dds",
	Short: "Versioned, content-verified file storage engine",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s\n", cfg.Database.Type)
		fmt.Printf("Graph:    %s\n", cfg.Graph.Type)
		fmt.Printf("Storage:  %s\n", cfg.Storage.Type)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		if err := app.MigrateUp(cfg); err != nil {
			return err
		}

		fmt.Println("Database is up to date.")
		return nil
	},
}

// project command
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(cmd.Context(), "ProjectCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		project, err := a.Service().CreateProject(ctx, args[0], description)
		if err != nil {
			return err
		}

		fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)
		return nil
	},
}

// agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage provenance agents",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create DISPLAY_NAME",
	Short: "Create an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")

		a, err := newApp(cmd.Context(), "AgentCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		agent, err := a.Service().CreateAgent(ctx, &model.Agent{
			Kind:        model.AgentKind(kind),
			Username:    username,
			Email:       email,
			DisplayName: args[0],
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created %s %s (%s)\n", agent.Kind, agent.DisplayName, agent.ID)
		return nil
	},
}

// activity command
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Manage provenance activities",
}

var activityCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(cmd.Context(), "ActivityCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		activity, err := a.Service().CreateActivity(ctx, &model.Activity{
			Name:        args[0],
			Description: description,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created activity %s (%s)\n", activity.Name, activity.ID)
		return nil
	},
}

// provider command
var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage storage providers",
}

var providerAddCmd = &cobra.Command{
	Use:   "add NAME BUCKET",
	Short: "Register a storage provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		urlRoot, _ := cmd.Flags().GetString("url-root")
		authURI, _ := cmd.Flags().GetString("auth-uri")
		chunkAlg, _ := cmd.Flags().GetString("chunk-hash-algorithm")

		a, err := newApp(cmd.Context(), "ProviderAdd")
		if err != nil {
			return err
		}
		defer a.Close()

		provider, err := a.Service().CreateStorageProvider(cmd.Context(), &model.StorageProvider{
			Name:               args[0],
			Bucket:             args[1],
			URLRoot:            urlRoot,
			AuthURI:            authURI,
			ChunkHashAlgorithm: chunkAlg,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Registered provider %s (%s)\n", provider.Name, provider.ID)
		return nil
	},
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List storage providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd.Context(), "ProviderList")
		if err != nil {
			return err
		}
		defer a.Close()

		providers, err := a.Service().ListStorageProviders(cmd.Context(), all)
		if err != nil {
			return err
		}

		if len(providers) == 0 {
			fmt.Println("No storage providers registered.")
			return nil
		}

		for _, p := range providers {
			deprecated := ""
			if p.IsDeprecated {
				deprecated = "  [deprecated]"
			}
			fmt.Printf("%s  %-20s  bucket:%s%s\n", p.ID, p.Name, p.Bucket, deprecated)
		}
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Manage uploads",
}

var uploadCreateCmd = &cobra.Command{
	Use:   "create PROJECT_ID PROVIDER_ID NAME",
	Short: "Create an upload and print its signed transfer URL",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetInt64("size")
		contentType, _ := cmd.Flags().GetString("content-type")
		digest, _ := cmd.Flags().GetString("fingerprint")
		algorithm, _ := cmd.Flags().GetString("algorithm")

		a, err := newApp(cmd.Context(), "UploadCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		upload, instruction, err := a.Service().CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:            args[0],
			StorageProviderID:    args[1],
			Name:                 args[2],
			ContentType:          contentType,
			Size:                 size,
			FingerprintValue:     digest,
			FingerprintAlgorithm: algorithm,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Upload %s\n", upload.ID)
		fmt.Printf("%s %s\n", instruction.HTTPVerb, instruction.URL)
		return nil
	},
}

var uploadCompleteCmd = &cobra.Command{
	Use:   "complete UPLOAD_ID",
	Short: "Report an upload as transferred and verify it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "UploadComplete")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		upload, err := a.Service().ReportUploadComplete(ctx, args[0])
		if err != nil {
			return err
		}

		if upload.HasError() {
			fmt.Printf("Upload %s failed verification: %s\n", upload.ID, upload.ErrorMessage)
			return nil
		}
		fmt.Printf("Upload %s completed at %s\n", upload.ID, upload.CompletedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage data files",
}

var fileCreateCmd = &cobra.Command{
	Use:   "create PROJECT_ID NAME UPLOAD_ID",
	Short: "Create a data file from a completed upload",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")
		parent, _ := cmd.Flags().GetString("parent")

		a, err := newApp(cmd.Context(), "FileCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		req := dds.CreateDataFileRequest{
			ProjectID: args[0],
			Name:      args[1],
			UploadID:  args[2],
			Label:     label,
		}
		if parent != "" {
			req.ParentID = &parent
		}

		file, err := a.Service().CreateDataFile(ctx, req)
		if err != nil {
			return err
		}

		fmt.Printf("Created file %s (%s)\n", file.Name, file.ID)
		return nil
	},
}

var fileAttachCmd = &cobra.Command{
	Use:   "attach FILE_ID UPLOAD_ID",
	Short: "Attach a completed upload as the file's new content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "FileAttach")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		file, err := a.Service().AttachUploadToFile(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		version, err := a.Service().CurrentVersion(ctx, file.ID)
		if err != nil {
			return err
		}

		fmt.Printf("File %s now at version %d\n", file.Name, version.VersionNumber)
		return nil
	},
}

var fileMoveCmd = &cobra.Command{
	Use:   "move FILE_ID",
	Short: "Move a file to a new parent folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		a, err := newApp(cmd.Context(), "FileMove")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		var parentID *string
		if parent != "" {
			parentID = &parent
		}

		file, err := a.Service().MoveDataFile(ctx, args[0], parentID)
		if err != nil {
			return err
		}

		fmt.Printf("Moved file %s\n", file.Name)
		return nil
	},
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete FILE_ID",
	Short: "Delete a file and all of its versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "FileDelete")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		if err := a.Service().DeleteDataFile(ctx, args[0]); err != nil {
			return err
		}

		fmt.Println("Deleted.")
		return nil
	},
}

var fileCurrentCmd = &cobra.Command{
	Use:   "current FILE_ID",
	Short: "Show the file's current version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "FileCurrent")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.Service().CurrentVersion(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		state := "pending"
		if version.Persisted() {
			state = fmt.Sprintf("version %d (%s)", version.VersionNumber, version.ID)
		}
		fmt.Printf("%s  upload:%s\n", state, version.UploadID)
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download VERSION_ID",
	Short: "Print a temporary download URL for a file version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Download")
		if err != nil {
			return err
		}
		defer a.Close()

		url, err := a.Service().TemporaryDownloadURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Println(url)
		return nil
	},
}

// relation command
var relationCmd = &cobra.Command{
	Use:   "relation",
	Short: "Manage provenance relations",
}

var relationRecordCmd = &cobra.Command{
	Use:   "record KIND FROM_TYPE FROM_ID TO_TYPE TO_ID",
	Short: "Record a provenance relation",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RelationRecord")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		rel, err := a.Service().RecordRelation(ctx,
			model.RelationKind(args[0]),
			dds.GraphNode{Type: args[1], ID: args[2]},
			dds.GraphNode{Type: args[3], ID: args[4]},
		)
		if err != nil {
			return err
		}

		fmt.Printf("Recorded %s (%s)\n", rel.Kind, rel.ID)
		return nil
	},
}

var relationDeleteCmd = &cobra.Command{
	Use:   "delete RELATION_ID",
	Short: "Delete a provenance relation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RelationDelete")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		if err := a.Service().DeleteRelation(ctx, args[0]); err != nil {
			return err
		}

		fmt.Println("Deleted.")
		return nil
	},
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair drift between stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Reconcile")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := principalContext(cmd, a)
		if err != nil {
			return err
		}

		counts, err := a.Service().RunReconciliation(ctx)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Printf("%-25s %d\n", k, counts[k])
		}
		return nil
	},
}

// auth-service command
var authServiceCmd = &cobra.Command{
	Use:   "auth-service",
	Short: "Manage authentication services",
}

var authServiceRegisterCmd = &cobra.Command{
	Use:   "register SERVICE_ID NAME",
	Short: "Register an authentication service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceType, _ := cmd.Flags().GetString("type")
		baseURI, _ := cmd.Flags().GetString("base-uri")

		if serviceType != "" {
			if err := auth.ValidateType(serviceType); err != nil {
				return err
			}
		}

		a, err := newApp(cmd.Context(), "AuthServiceRegister")
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.Service().RegisterAuthService(cmd.Context(), &model.AuthenticationService{
			ServiceID: args[0],
			Name:      args[1],
			BaseURI:   baseURI,
			Type:      serviceType,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Registered %s service %s (%s)\n", svc.Type, svc.Name, svc.ID)
		return nil
	},
}

// whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Resolve an access token to a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Access token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		token := strings.TrimSpace(string(raw))

		a, err := newApp(cmd.Context(), "Whoami")
		if err != nil {
			return err
		}
		defer a.Close()

		_, agent, err := a.Authenticate(cmd.Context(), token)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s) <%s>\n", agent.DisplayName, agent.Username, agent.Email)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("agent", "", "Agent ID to attribute mutations to")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// project subcommands
	projectCmd.AddCommand(projectCreateCmd)
	projectCreateCmd.Flags().String("description", "", "Project description")

	// agent subcommands
	agentCmd.AddCommand(agentCreateCmd)
	agentCreateCmd.Flags().String("kind", string(model.AgentUser), "Agent kind: user or software_agent")
	agentCreateCmd.Flags().String("username", "", "Username (users only)")
	agentCreateCmd.Flags().String("email", "", "Email address")

	// activity subcommands
	activityCmd.AddCommand(activityCreateCmd)
	activityCreateCmd.Flags().String("description", "", "Activity description")

	// provider subcommands
	providerCmd.AddCommand(providerAddCmd)
	providerCmd.AddCommand(providerListCmd)
	providerAddCmd.Flags().String("url-root", "", "Base URL clients transfer against")
	providerAddCmd.Flags().String("auth-uri", "", "Provider auth endpoint")
	providerAddCmd.Flags().String("chunk-hash-algorithm", "md5", "Digest algorithm for chunk hashes")
	providerListCmd.Flags().Bool("all", false, "Include deprecated providers")

	// upload subcommands
	uploadCmd.AddCommand(uploadCreateCmd)
	uploadCmd.AddCommand(uploadCompleteCmd)
	uploadCreateCmd.Flags().Int64("size", 0, "Content size in bytes")
	uploadCreateCmd.Flags().String("content-type", "application/octet-stream", "Content type")
	uploadCreateCmd.Flags().String("fingerprint", "", "Client-reported digest")
	uploadCreateCmd.Flags().String("algorithm", "", "Digest algorithm")

	// file subcommands
	fileCmd.AddCommand(fileCreateCmd)
	fileCmd.AddCommand(fileAttachCmd)
	fileCmd.AddCommand(fileMoveCmd)
	fileCmd.AddCommand(fileDeleteCmd)
	fileCmd.AddCommand(fileCurrentCmd)
	fileCreateCmd.Flags().String("label", "", "Version label")
	fileCreateCmd.Flags().String("parent", "", "Parent folder file ID")
	fileMoveCmd.Flags().String("parent", "", "New parent folder file ID (empty = project root)")

	// relation subcommands
	relationCmd.AddCommand(relationRecordCmd)
	relationCmd.AddCommand(relationDeleteCmd)

	// auth-service subcommands
	authServiceCmd.AddCommand(authServiceRegisterCmd)
	authServiceRegisterCmd.Flags().String("type", "", "Service type: duke or openid")
	authServiceRegisterCmd.Flags().String("base-uri", "", "Service base URI")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(providerCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(relationCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(authServiceCmd)
	rootCmd.AddCommand(whoamiCmd)
}
