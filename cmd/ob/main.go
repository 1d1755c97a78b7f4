package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opsboard/internal/app"
	"opsboard/internal/board"
	"opsboard/internal/config"
	"opsboard/internal/db"
	"opsboard/internal/domain"
	"opsboard/internal/migrate"
	"opsboard/internal/repo"
	"opsboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ob",
	Short: "Opsboard CLI",
	Long: `Opsboard runs a project workflow board: typed stage columns per project,
tasks, incidents and resource requests that move between them, and an
append-only activity log recording every move.

- Workspace: the .opsboard directory holding the SQLite database.
- Stages: ordered columns, each typed TASK, INCIDENT or RESOURCE; a column
  only accepts items of its own type.
- Move: 'ob task move', 'ob incident move' and 'ob request move' reposition
  an item and write exactly one audit row.
- Comments: attached to resource requests; only the author or an elevated
  role (ADMIN, SUPER_ADMIN) may edit or delete them.
- Activity: view the audit trail with 'ob log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OPSBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user id")
	rootCmd.PersistentFlags().String("role", domain.RoleManager, "acting user role")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides single-project default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(incidentCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- shared plumbing ---

func withBoard(ctx context.Context, fn func(context.Context, board.Board) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, board.New(conn))
}

// withProject resolves the active project (creating it on the fly for a
// fresh workspace) before running fn.
func withProject(ctx context.Context, fn func(context.Context, board.Board, string) error) error {
	return withBoard(ctx, func(ctx context.Context, b board.Board) error {
		projectID, _, err := app.ResolveProjectAndConfig(ctx, b, viper.GetString("project"), viper.GetString("user-id"))
		if err != nil {
			return err
		}
		return fn(ctx, b, projectID)
	})
}

func actingUser() (string, string) {
	return viper.GetString("user-id"), viper.GetString("role")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, b board.Board) error {
				items, err := b.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Owner", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.OwnerID, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withBoard(cmd.Context(), func(ctx context.Context, b board.Board) error {
				userID, _ := actingUser()
				if err := b.Repo.EnsureUser(ctx, nil, domain.User{ID: userID, Name: userID, Role: viper.GetString("role")}); err != nil {
					return err
				}
				p, err := b.InitProject(ctx, id, name, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				p, err := b.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage project board config"}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	cfg.AddCommand(projectConfigInitCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				cfg, err := b.Repo.GetProjectConfig(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}
}

func projectConfigImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				cfg, err := config.FromFile(file)
				if err != nil {
					return err
				}
				if err := b.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
					return err
				}
				fmt.Println("config imported for project", projectID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to opsboard.yml")
	return cmd
}

func projectConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Print default config YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := viper.GetString("project")
			if projectID == "" {
				projectID = "my-project"
			}
			fmt.Print(config.GenerateDefault(projectID))
			return nil
		},
	}
}

// --- stage ---

func stageCmd() *cobra.Command {
	stage := &cobra.Command{Use: "stage", Short: "Manage board stages"}
	stage.AddCommand(stageListCmd())
	stage.AddCommand(stageCreateCmd())
	stage.AddCommand(stageSeedCmd())
	return stage
}

func stageListCmd() *cobra.Command {
	var stageType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stages with item counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				items, err := b.ListStages(ctx, projectID, stageType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Order", "Tasks", "Incidents"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.StageType, s.Order, s.TaskCount, s.IncidentCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageType, "type", "", "stage type filter (TASK, INCIDENT, RESOURCE)")
	return cmd
}

func stageCreateCmd() *cobra.Command {
	var name, color, stageType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a stage column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				s, err := b.CreateStage(ctx, board.StageCreateOptions{
					ProjectID: projectID,
					Name:      name,
					Color:     color,
					StageType: stageType,
					UserID:    userID,
					Role:      role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "stage name")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	cmd.Flags().StringVar(&stageType, "type", domain.StageTypeTask, "stage type (TASK, INCIDENT, RESOURCE)")
	return cmd
}

func stageSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create stage columns from the config templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				created, err := b.SeedStages(ctx, projectID, userID, role)
				if err != nil {
					return err
				}
				fmt.Printf("created %d stages\n", len(created))
				return printJSONOrTable(created)
			})
		},
	}
}

// --- task ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskStatusCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, description, assignee, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				t, err := b.CreateTask(ctx, board.TaskCreateOptions{
					ProjectID:   projectID,
					Title:       title,
					Description: description,
					AssigneeID:  assignee,
					DueDate:     due,
					UserID:      userID,
					Role:        role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee user id")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				tasks, err := b.Repo.ListTasks(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Stage", "Assignee"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, deref(t.StageID), deref(t.AssigneeID)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				t, err := b.Repo.GetTask(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskMoveCmd() *cobra.Command {
	var stageID string
	var unstage bool
	cmd := &cobra.Command{
		Use:   "move <task-id>",
		Short: "Move task to a stage (or off the board with --unstage)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				return moveItem(ctx, b, projectID, domain.KindTask, args[0], stageID, unstage)
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "target stage id")
	cmd.Flags().BoolVar(&unstage, "unstage", false, "detach from current stage")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Update task status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				t, err := b.UpdateTaskStatus(ctx, projectID, args[0], status, userID, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "TODO, IN_PROGRESS or DONE")
	return cmd
}

func moveItem(ctx context.Context, b board.Board, projectID string, kind domain.ItemKind, itemID, stageID string, unstage bool) error {
	if stageID == "" && !unstage {
		return fmt.Errorf("--stage or --unstage required")
	}
	var target *string
	if !unstage {
		target = &stageID
	}
	userID, role := actingUser()
	if err := b.Move(ctx, board.MoveOptions{
		ProjectID: projectID,
		Kind:      kind,
		ItemID:    itemID,
		StageID:   target,
		UserID:    userID,
		Role:      role,
	}); err != nil {
		return err
	}
	fmt.Println("moved", itemID)
	return nil
}

// --- incident ---

func incidentCmd() *cobra.Command {
	inc := &cobra.Command{Use: "incident", Short: "Manage incidents"}
	inc.AddCommand(incidentCreateCmd())
	inc.AddCommand(incidentListCmd())
	inc.AddCommand(incidentMoveCmd())
	inc.AddCommand(incidentStatusCmd())
	return inc
}

func incidentCreateCmd() *cobra.Command {
	var title, description, assignee, relatedTask string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Report incident",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				in, err := b.CreateIncident(ctx, board.IncidentCreateOptions{
					ProjectID:     projectID,
					Title:         title,
					Description:   description,
					AssigneeID:    assignee,
					RelatedTaskID: relatedTask,
					UserID:        userID,
					Role:          role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "incident title")
	cmd.Flags().StringVar(&description, "description", "", "incident description")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee user id")
	cmd.Flags().StringVar(&relatedTask, "related-task", "", "related task id")
	return cmd
}

func incidentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List incidents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				items, err := b.Repo.ListIncidents(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Stage", "Reporter"})
				for _, in := range items {
					tw.AppendRow(table.Row{in.ID, in.Title, in.Status, deref(in.StageID), in.ReporterID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func incidentMoveCmd() *cobra.Command {
	var stageID string
	var unstage bool
	cmd := &cobra.Command{
		Use:   "move <incident-id>",
		Short: "Move incident to a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				return moveItem(ctx, b, projectID, domain.KindIncident, args[0], stageID, unstage)
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "target stage id")
	cmd.Flags().BoolVar(&unstage, "unstage", false, "detach from current stage")
	return cmd
}

func incidentStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <incident-id>",
		Short: "Update incident status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				in, err := b.UpdateIncidentStatus(ctx, projectID, args[0], status, userID, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "OPEN, INVESTIGATING, RESOLVED or CLOSED")
	return cmd
}

// --- resource request ---

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Manage resource requests"}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestMoveCmd())
	req.AddCommand(requestStatusCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var title, notes, taskID, incidentID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create resource request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				rr, err := b.CreateResourceRequest(ctx, board.RequestCreateOptions{
					ProjectID:  projectID,
					Title:      title,
					Notes:      notes,
					TaskID:     taskID,
					IncidentID: incidentID,
					UserID:     userID,
					Role:       role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rr)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "request title")
	cmd.Flags().StringVar(&notes, "notes", "", "request notes")
	cmd.Flags().StringVar(&taskID, "task", "", "linked task id")
	cmd.Flags().StringVar(&incidentID, "incident", "", "linked incident id")
	return cmd
}

func requestListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resource requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				items, err := b.Repo.ListResourceRequests(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Stage", "Requester"})
				for _, rr := range items {
					tw.AppendRow(table.Row{rr.ID, rr.Title, rr.Status, deref(rr.StageID), rr.RequesterID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func requestMoveCmd() *cobra.Command {
	var stageID string
	var unstage bool
	cmd := &cobra.Command{
		Use:   "move <request-id>",
		Short: "Move resource request to a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				return moveItem(ctx, b, projectID, domain.KindResourceRequest, args[0], stageID, unstage)
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "target stage id")
	cmd.Flags().BoolVar(&unstage, "unstage", false, "detach from current stage")
	return cmd
}

func requestStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <request-id>",
		Short: "Update resource request status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				rr, err := b.UpdateRequestStatus(ctx, projectID, args[0], status, userID, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(rr)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "PENDING, APPROVED, REJECTED or FULFILLED")
	return cmd
}

// --- comment ---

func commentCmd() *cobra.Command {
	com := &cobra.Command{Use: "comment", Short: "Manage resource request comments"}
	com.AddCommand(commentAddCmd())
	com.AddCommand(commentListCmd())
	com.AddCommand(commentEditCmd())
	com.AddCommand(commentRmCmd())
	return com
}

func commentAddCmd() *cobra.Command {
	var requestID, content string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Comment on a resource request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				c, err := b.CreateComment(ctx, board.CommentCreateOptions{
					ProjectID: projectID,
					RequestID: requestID,
					Content:   content,
					UserID:    userID,
					Role:      role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "resource request id")
	cmd.Flags().StringVar(&content, "content", "", "comment text")
	return cmd
}

func commentListCmd() *cobra.Command {
	var requestID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List comments on a resource request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				items, err := b.ListComments(ctx, projectID, requestID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "resource request id")
	return cmd
}

func commentEditCmd() *cobra.Command {
	var requestID, content string
	cmd := &cobra.Command{
		Use:   "edit <comment-id>",
		Short: "Edit a comment (author or elevated role only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				c, err := b.UpdateComment(ctx, board.CommentEditOptions{
					ProjectID: projectID,
					RequestID: requestID,
					CommentID: args[0],
					Content:   content,
					UserID:    userID,
					Role:      role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "resource request id")
	cmd.Flags().StringVar(&content, "content", "", "replacement text")
	return cmd
}

func commentRmCmd() *cobra.Command {
	var requestID string
	cmd := &cobra.Command{
		Use:   "rm <comment-id>",
		Short: "Delete a comment (author or elevated role only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				userID, role := actingUser()
				if err := b.DeleteComment(ctx, board.CommentEditOptions{
					ProjectID: projectID,
					RequestID: requestID,
					CommentID: args[0],
					UserID:    userID,
					Role:      role,
				}); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "resource request id")
	return cmd
}

// --- member / user ---

func memberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage project members"}
	mem.AddCommand(memberAddCmd())
	mem.AddCommand(memberListCmd())
	mem.AddCommand(memberRmCmd())
	return mem
}

func memberAddCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member to the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--member required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				actorID, actorRole := actingUser()
				m, err := b.AddMember(ctx, projectID, userID, role, actorID, actorRole)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "member", "", "user id to enroll")
	cmd.Flags().StringVar(&role, "member-role", domain.RoleEmployee, "membership role")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				items, err := b.Repo.ListMembers(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func memberRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <user-id>",
		Short: "Remove a member from the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				actorID, actorRole := actingUser()
				if err := b.RemoveMember(ctx, projectID, args[0], actorID, actorRole); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var id, name, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withBoard(cmd.Context(), func(ctx context.Context, b board.Board) error {
				if name == "" {
					name = id
				}
				u := domain.User{ID: id, Name: name, Role: role}
				if err := b.Repo.EnsureUser(ctx, nil, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "user-role", domain.RoleEmployee, "user role")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, b board.Board) error {
				items, err := b.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

// --- activity log ---

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Activity log",
		Long:  "The audit trail of board moves: each successful move writes exactly one row here.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var actType, itemKind, itemID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail activity rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, b board.Board, projectID string) error {
				items, err := b.Activities(ctx, repo.ActivityFilters{
					ProjectID: projectID,
					Type:      actType,
					ItemKind:  itemKind,
					ItemID:    itemID,
					Limit:     n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of rows")
	cmd.Flags().StringVar(&actType, "type", "", "activity type filter")
	cmd.Flags().StringVar(&itemKind, "item-kind", "", "item kind filter")
	cmd.Flags().StringVar(&itemID, "item-id", "", "item id filter")
	return cmd
}

// --- api keys & tokens ---

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRmCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, b board.Board) error {
				userID, role := actingUser()
				if err := b.Repo.EnsureUser(ctx, nil, domain.User{ID: userID, Name: userID, Role: role}); err != nil {
					return err
				}
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					UserID:  userID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := b.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				// The plaintext secret is shown once and never stored.
				fmt.Println(secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, b board.Board) error {
				keys, err := b.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	return cmd
}

func apikeyRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, b board.Board) error {
				if err := b.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("OPSBOARD_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("OPSBOARD_JWT_SECRET is required")
			}
			userID, role := actingUser()
			token, err := server.IssueToken(secret, userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			b := board.New(conn)
			var hooks []config.Webhook
			if cfg, err := config.LoadOptional(workspace); err != nil {
				return err
			} else if cfg != nil {
				hooks = cfg.Webhooks
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("OPSBOARD_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("OPSBOARD_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Board: b, BasePath: basePath, Auth: authCfg, Webhooks: hooks})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Opsboard API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
