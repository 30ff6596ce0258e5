package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahmadzakiakmal/ccp-production/client"
	"github.com/ahmadzakiakmal/ccp-production/production"
	"github.com/ahmadzakiakmal/ccp-production/srvreg"
)

const requestTimeout = 30 * time.Second

var (
	listStatus   string
	listRecipe   string
	listFrom     string
	listTo       string
	createRecipe string
	createQty    string
	createDate   string
	createNotes  string
	cancelReason string
	operatorName string
	readingTemp  float64
	readingHold  int
	readingNotes string
	completedQty string
)

func newClient() *client.Client {
	return client.NewClient(serverURL, requestTimeout)
}

func registerWorkOrderCommands(root *cobra.Command) {
	woCmd := &cobra.Command{
		Use:     "wo",
		Aliases: []string{"work-order"},
		Short:   "Manage work orders on a running node",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := production.WorkOrderFilter{
				Status:   production.WorkOrderStatus(strings.ToUpper(listStatus)),
				RecipeID: listRecipe,
			}
			var err error
			if filter.PlannedFrom, err = srvreg.ParsePlannedDate(listFrom); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			if filter.PlannedTo, err = srvreg.ParsePlannedDateEnd(listTo); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			orders, err := newClient().ListWorkOrders(ctx, filter)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), orders)
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&listRecipe, "recipe", "", "Filter by recipe id")
	listCmd.Flags().StringVar(&listFrom, "from", "", "Planned on or after (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listTo, "to", "", "Planned on or before (YYYY-MM-DD)")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a work order with its job cards",
		Args:  cobra.ExactArgs(1),
		RunE: workOrderCommand(func(ctx context.Context, c *client.Client, args []string) (*production.WorkOrder, error) {
			return c.GetWorkOrder(ctx, args[0])
		}),
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a DRAFT work order from a recipe",
		RunE: workOrderCommand(func(ctx context.Context, c *client.Client, args []string) (*production.WorkOrder, error) {
			qty, err := decimal.NewFromString(createQty)
			if err != nil {
				return nil, fmt.Errorf("invalid --qty %q: %w", createQty, err)
			}
			return c.CreateWorkOrder(ctx, srvreg.CreateWorkOrderBody{
				RecipeID:    createRecipe,
				PlannedQty:  qty,
				PlannedDate: createDate,
				Remarks:     createNotes,
			})
		}),
	}
	createCmd.Flags().StringVar(&createRecipe, "recipe", "", "Recipe id")
	createCmd.Flags().StringVar(&createQty, "qty", "", "Planned quantity")
	createCmd.Flags().StringVar(&createDate, "date", "", "Planned date (YYYY-MM-DD); defaults to today")
	createCmd.Flags().StringVar(&createNotes, "remarks", "", "Remarks")
	createCmd.MarkFlagRequired("recipe")
	createCmd.MarkFlagRequired("qty")

	transition := func(use, short string, fn func(*client.Client, context.Context, string) (*production.WorkOrder, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: workOrderCommand(func(ctx context.Context, c *client.Client, args []string) (*production.WorkOrder, error) {
				return fn(c, ctx, args[0])
			}),
		}
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a work order",
		Args:  cobra.ExactArgs(1),
		RunE: workOrderCommand(func(ctx context.Context, c *client.Client, args []string) (*production.WorkOrder, error) {
			return c.CancelWorkOrder(ctx, args[0], cancelReason)
		}),
	}
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Why the order is cancelled")
	cancelCmd.MarkFlagRequired("reason")

	woCmd.AddCommand(
		listCmd,
		getCmd,
		createCmd,
		transition("release", "Release a DRAFT work order", (*client.Client).ReleaseWorkOrder),
		transition("start", "Start a RELEASED work order", (*client.Client).StartWorkOrder),
		transition("complete", "Complete an IN_PROGRESS work order", (*client.Client).CompleteWorkOrder),
		cancelCmd,
	)
	root.AddCommand(woCmd)
}

func registerJobCardCommands(root *cobra.Command) {
	jcCmd := &cobra.Command{
		Use:     "jc",
		Aliases: []string{"job-card"},
		Short:   "Operate job cards of an IN_PROGRESS work order",
	}

	startCmd := &cobra.Command{
		Use:   "start <work-order-id> <job-card-id>",
		Short: "Start a job card",
		Args:  cobra.ExactArgs(2),
		RunE: workOrderCommand(func(ctx context.Context, c *client.Client, args []string) (*production.WorkOrder, error) {
			return c.StartJobCard(ctx, args[0], args[1], operatorName)
		}),
	}
	startCmd.Flags().StringVar(&operatorName, "operator", "", "Operator name")

	readingCmd := &cobra.Command{
		Use:   "reading <work-order-id> <job-card-id>",
		Short: "Record a CCP reading",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := production.ReadingInput{Operator: operatorName, Notes: readingNotes}
			if cmd.Flags().Changed("temperature") {
				in.Temperature = &readingTemp
			}
			if cmd.Flags().Changed("holding-time") {
				in.HoldingTime = &readingHold
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			result, err := newClient().RecordReading(ctx, args[0], args[1], in)
			if err != nil {
				return err
			}
			if err := printOutput(cmd.OutOrStdout(), result.Reading); err != nil {
				return err
			}
			if !result.CanProceed {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ CCP failed: %s\n", strings.Join(result.Reading.Reasons, "; "))
			}
			return nil
		},
	}
	readingCmd.Flags().StringVar(&operatorName, "operator", "", "Operator name")
	readingCmd.Flags().Float64Var(&readingTemp, "temperature", 0, "Measured temperature (°C)")
	readingCmd.Flags().IntVar(&readingHold, "holding-time", 0, "Measured holding time (seconds)")
	readingCmd.Flags().StringVar(&readingNotes, "notes", "", "Notes")

	completeCmd := &cobra.Command{
		Use:   "complete <work-order-id> <job-card-id>",
		Short: "Complete a job card",
		Args:  cobra.ExactArgs(2),
		RunE: workOrderCommand(func(ctx context.Context, c *client.Client, args []string) (*production.WorkOrder, error) {
			qty, err := decimal.NewFromString(completedQty)
			if err != nil {
				return nil, fmt.Errorf("invalid --qty %q: %w", completedQty, err)
			}
			return c.CompleteJobCard(ctx, args[0], args[1], qty)
		}),
	}
	completeCmd.Flags().StringVar(&completedQty, "qty", "0", "Completed quantity")

	readingsCmd := &cobra.Command{
		Use:   "readings <work-order-id> <job-card-id>",
		Short: "Show a job card's reading history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			readings, err := newClient().Readings(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), readings)
		},
	}

	jcCmd.AddCommand(startCmd, readingCmd, completeCmd, readingsCmd)
	root.AddCommand(jcCmd)
}

// workOrderCommand runs fn against the node and prints the work order it
// returns
func workOrderCommand(fn func(context.Context, *client.Client, []string) (*production.WorkOrder, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		wo, err := fn(ctx, newClient(), args)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), wo)
	}
}

func printOutput(out io.Writer, v interface{}) error {
	switch outputFormat {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json", "":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", outputFormat)
	}
}
