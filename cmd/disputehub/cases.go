package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"disputehub/internal/domain"
	"disputehub/internal/engine"
	"disputehub/internal/repo"
)

func caseCmd() *cobra.Command {
	c := &cobra.Command{Use: "case", Short: "Manage cases"}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseRestrictCmd())
	c.AddCommand(caseCloseCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CreateCaseOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a case for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "case id (generated when empty)")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "owner user id")
	cmd.Flags().StringVar(&opts.UserEmail, "email", "", "owner email")
	cmd.Flags().StringVar(&opts.UserName, "name", "", "owner display name")
	cmd.Flags().StringVar(&opts.Title, "title", "", "case title")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetCase(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func caseListCmd() *cobra.Command {
	var f repo.CaseFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cases, err := r.ListCases(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cases)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Owner", "Title", "Phase", "Chat", "Lifecycle", "Locked"})
				for _, c := range cases {
					tw.AppendRow(table.Row{c.ID, c.UserID, c.Title, c.Phase, c.ChatState, c.LifecycleStatus, c.StrategyLocked})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "filter by owner")
	cmd.Flags().StringVar(&f.LifecycleStatus, "lifecycle", "", "filter by lifecycle status (ACTIVE|WAITING|CLOSED)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func caseRestrictCmd() *cobra.Command {
	var lift bool
	cmd := &cobra.Command{
		Use:   "restrict <case-id>",
		Short: "Restrict a case so the gate never runs (use --lift to clear)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetRestricted(ctx, args[0], !lift)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().BoolVar(&lift, "lift", false, "clear the restriction")
	return cmd
}

func caseCloseCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "close <case-id>",
		Short: "Close a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CloseCase(ctx, args[0], reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "closing note for the timeline")
	return cmd
}

func strategyCmd() *cobra.Command {
	s := &cobra.Command{Use: "strategy", Short: "Inspect and edit case strategies"}
	s.AddCommand(&cobra.Command{
		Use:   "show <case-id>",
		Short: "Show the strategy with its completeness report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.GetStrategy(ctx, args[0])
				if err != nil {
					return err
				}
				report, err := e.Completeness(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"strategy": st, "completeness": report})
			})
		},
	})
	s.AddCommand(strategyApplyCmd())
	s.AddCommand(&cobra.Command{
		Use:   "reset <case-id>",
		Short: "Unlock the strategy and discard its plan and documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ResetStrategy(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})
	return s
}

func strategyApplyCmd() *cobra.Command {
	var (
		disputeType, outcome string
		facts, evidence      []string
	)
	cmd := &cobra.Command{
		Use:   "apply <case-id>",
		Short: "Apply a strategy delta (facts and evidence are appended)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := domain.StrategyDelta{
				DisputeType:    optionalString(disputeType),
				AddFacts:       facts,
				AddEvidence:    evidence,
				DesiredOutcome: optionalString(outcome),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.ApplyStrategyDelta(ctx, args[0], d)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&disputeType, "dispute-type", "", "dispute type")
	cmd.Flags().StringArrayVar(&facts, "fact", nil, "key fact (repeatable)")
	cmd.Flags().StringArrayVar(&evidence, "evidence", nil, "evidence mentioned (repeatable)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "desired outcome")
	return cmd
}

func gateCmd() *cobra.Command {
	g := &cobra.Command{Use: "gate", Short: "Decision gate"}
	g.AddCommand(&cobra.Command{
		Use:   "check <case-id>",
		Short: "Evaluate the trigger predicate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CheckTrigger(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "execute <case-id>",
		Short: "Lock the strategy, create the document plan and generate documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Execute(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	return g
}

func evidenceCmd() *cobra.Command {
	ev := &cobra.Command{Use: "evidence", Short: "Manage evidence items"}
	ev.AddCommand(evidenceAddCmd())
	ev.AddCommand(&cobra.Command{
		Use:   "list <case-id>",
		Short: "List evidence in exhibit order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvidence(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Exhibit", "ID", "Title", "Type", "Date"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Index, it.ID, it.Title, it.FileType, deref(it.EvidenceDate)})
				}
				tw.Render()
				return nil
			})
		},
	})
	ev.AddCommand(&cobra.Command{
		Use:   "delete <case-id> <evidence-id>",
		Short: "Delete an evidence item (its index is not reused)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteEvidence(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Println("deleted", args[1])
				return nil
			})
		},
	})
	return ev
}

func evidenceAddCmd() *cobra.Command {
	var (
		in                engine.EvidenceInput
		description, date string
	)
	cmd := &cobra.Command{
		Use:   "add <case-id>",
		Short: "Add an evidence item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.CaseID = args[0]
			in.Description = optionalString(description)
			in.EvidenceDate = optionalString(date)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if in.UploadedBy == "" {
					c, err := e.GetCase(ctx, in.CaseID)
					if err != nil {
						return err
					}
					in.UploadedBy = c.UserID
				}
				it, err := e.AddEvidence(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&in.FileRef, "file", "", "file reference")
	cmd.Flags().StringVar(&in.FileType, "type", "", "file type")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&date, "date", "", "evidence date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.UploadedBy, "by", "", "uploader (defaults to case owner)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func planCmd() *cobra.Command {
	p := &cobra.Command{Use: "plan", Short: "Document plans"}
	p.AddCommand(&cobra.Command{
		Use:   "show <case-id>",
		Short: "Show the document plan with its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plan, err := r.GetPlanByCase(ctx, args[0])
				if err != nil {
					return err
				}
				docs, err := r.ListDocuments(ctx, args[0], "")
				if err != nil {
					return err
				}
				plan.Documents = docs
				return printJSONOrTable(plan)
			})
		},
	})
	return p
}

func docsCmd() *cobra.Command {
	d := &cobra.Command{Use: "docs", Short: "Generated documents"}
	d.AddCommand(docsListCmd())
	d.AddCommand(&cobra.Command{
		Use:   "retry <case-id> [document-id]",
		Short: "Retry one failed document, or every failed document in the plan",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 2 {
					doc, err := e.RetryDocument(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					return printJSONOrTable(doc)
				}
				res, err := e.RetryFailedDocuments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	d.AddCommand(&cobra.Command{
		Use:   "sent <case-id> <document-id>",
		Short: "Record that a document was sent and start the response window",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.MarkDocumentSent(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(doc)
			})
		},
	})
	d.AddCommand(&cobra.Command{
		Use:   "follow-up <case-id>",
		Short: "Generate a follow-up letter for a waiting case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.GenerateFollowUp(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(doc)
			})
		},
	})
	return d
}

func docsListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <case-id>",
		Short: "List documents in plan order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				docs, err := r.ListDocuments(ctx, args[0], status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "ID", "Type", "Status", "Retries", "Error"})
				for _, doc := range docs {
					tw.AppendRow(table.Row{doc.Position, doc.ID, doc.Type, doc.Status, doc.RetryCount, deref(doc.LastError)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING|COMPLETED|FAILED)")
	return cmd
}

func timelineCmd() *cobra.Command {
	t := &cobra.Command{Use: "timeline", Short: "Case timeline"}
	var (
		after int64
		limit int
	)
	tail := &cobra.Command{
		Use:   "tail <case-id>",
		Short: "Print timeline events in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListTimeline(ctx, args[0], after, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Occurred", "Type", "Description"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.OccurredAt, ev.Type, ev.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().Int64Var(&after, "after", 0, "only events with id greater than this")
	tail.Flags().IntVar(&limit, "limit", 100, "max events")
	t.AddCommand(tail)
	return t
}

func deadlinesCmd() *cobra.Command {
	d := &cobra.Command{Use: "deadlines", Short: "Response deadlines"}
	var limit int
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Record DEADLINE_MISSED for waiting cases past their response window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SweepDeadlines(ctx, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	sweep.Flags().IntVar(&limit, "limit", 0, "max cases per sweep")
	d.AddCommand(sweep)
	return d
}
