package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"

	"github.com/weeklist/weeklist/internal/listsync"
	"github.com/weeklist/weeklist/internal/weeklist"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "weeklist",
		Short:         "Weekly shopping list client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultServer := os.Getenv("WEEKLIST_SERVER")
	if defaultServer == "" {
		defaultServer = "http://127.0.0.1:8080"
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "weeklistd base URL")

	root.AddCommand(
		listCmd(),
		addCmd(),
		doneCmd(),
		rmCmd(),
		clearCompletedCmd(),
		resetCmd(),
		categoriesCmd(),
		historyCmd(),
		watchCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openList connects to the server and loads the full list state.
func openList(ctx context.Context) (*listsync.List, error) {
	client := listsync.NewClient(serverURL, nil)
	list := listsync.New(client, listsync.Options{StrictSync: true})
	if err := list.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("loading list from %s: %w", serverURL, err)
	}
	return list, nil
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the current shopping list grouped by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := openList(cmd.Context())
			if err != nil {
				return err
			}
			items := list.Items()
			if len(items) == 0 {
				fmt.Println("list is empty")
				return nil
			}

			grouped := map[string][]weeklist.Item{}
			for _, item := range items {
				category := item.Category
				if category == "" {
					category = weeklist.DefaultCategory
				}
				grouped[category] = append(grouped[category], item)
			}
			names := make([]string, 0, len(grouped))
			for name := range grouped {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(w, "%s\n", name)
				for _, item := range grouped[name] {
					mark := " "
					if item.Completed {
						mark = "x"
					}
					fmt.Fprintf(w, "  [%s]\t%s\tx%s\t%s\n", mark, item.Name, item.Quantity, item.ID)
				}
			}
			return w.Flush()
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME...",
		Short: "Add items; known names pick up their usual category",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := openList(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range args {
				item, err := list.AddItem(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("adding %q: %w", name, err)
				}
				fmt.Printf("added %s (%s)\n", item.Name, item.Category)
			}
			return nil
		},
	}
}

func doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done NAME|ID",
		Short: "Toggle an item's completed state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := openList(cmd.Context())
			if err != nil {
				return err
			}
			item, err := resolveItem(list, args[0])
			if err != nil {
				return err
			}
			if err := list.ToggleItem(cmd.Context(), item.ID); err != nil {
				return err
			}
			state := "open"
			if !item.Completed {
				state = "done"
			}
			fmt.Printf("%s is now %s\n", item.Name, state)
			return nil
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME|ID",
		Short: "Remove an item from the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := openList(cmd.Context())
			if err != nil {
				return err
			}
			item, err := resolveItem(list, args[0])
			if err != nil {
				return err
			}
			if err := list.DeleteItem(cmd.Context(), item.ID); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", item.Name)
			return nil
		},
	}
}

func clearCompletedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove all completed items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := openList(cmd.Context())
			if err != nil {
				return err
			}
			before := len(list.Items())
			if err := list.ClearCompleted(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("removed %d completed item(s)\n", before-len(list.Items()))
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the whole list and start a new week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm("This clears every item and starts a new week. Continue? [y/N] ") {
				fmt.Println("aborted")
				return nil
			}
			list, err := openList(cmd.Context())
			if err != nil {
				return err
			}
			if err := list.ResetList(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("new week started %s\n",
				time.UnixMilli(list.WeekStart()).Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show categories in display order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := openList(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, category := range list.Categories() {
					fmt.Fprintf(w, "%d\t%s\t%s\n", category.Order, category.Name, category.ID)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "add NAME [ORDER]",
			Short: "Create a category",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := openList(cmd.Context())
				if err != nil {
					return err
				}
				order := len(list.Categories())
				if len(args) == 2 {
					order, err = strconv.Atoi(args[1])
					if err != nil {
						return fmt.Errorf("invalid order %q", args[1])
					}
				}
				category, err := list.AddCategory(cmd.Context(), args[0], order)
				if err != nil {
					return err
				}
				fmt.Printf("created %s\n", category.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm NAME|ID",
			Short: "Delete a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := openList(cmd.Context())
				if err != nil {
					return err
				}
				for _, category := range list.Categories() {
					if category.ID == args[0] || strings.EqualFold(category.Name, args[0]) {
						if err := list.DeleteCategory(cmd.Context(), category.ID); err != nil {
							return err
						}
						fmt.Printf("deleted %s\n", category.Name)
						return nil
					}
				}
				return fmt.Errorf("no category matches %q", args[0])
			},
		},
	)
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage remembered item names and their categories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show remembered names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := openList(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, entry := range list.History() {
					category := entry.Category
					if category == "" {
						category = weeklist.DefaultCategory
					}
					fmt.Fprintf(w, "%s\t%s\n", entry.Name, category)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "add NAME [CATEGORY]",
			Short: "Remember a name, optionally with a category",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := openList(cmd.Context())
				if err != nil {
					return err
				}
				category := ""
				if len(args) == 2 {
					category = args[1]
				}
				if err := list.AddHistoryItem(cmd.Context(), args[0], category); err != nil {
					return err
				}
				fmt.Printf("remembered %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm NAME",
			Short: "Forget a name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := openList(cmd.Context())
				if err != nil {
					return err
				}
				if err := list.DeleteHistoryItem(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Printf("forgot %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename NAME NEW_NAME [CATEGORY]",
			Short: "Rename a remembered name",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := openList(cmd.Context())
				if err != nil {
					return err
				}
				category := ""
				for _, entry := range list.History() {
					if entry.Name == args[0] {
						category = entry.Category
						break
					}
				}
				if len(args) == 3 {
					category = args[2]
				}
				if err := list.RenameHistoryItem(cmd.Context(), args[0], args[1], category); err != nil {
					return err
				}
				fmt.Printf("renamed %s to %s\n", args[0], args[1])
				return nil
			},
		},
	)
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live change events from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wsURL := strings.Replace(strings.TrimRight(serverURL, "/"), "http", "ws", 1) + "/events"
			conn, _, err := websocket.Dial(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", wsURL, err)
			}
			defer conn.CloseNow()
			fmt.Fprintln(os.Stderr, "watching", wsURL)
			for {
				_, msg, err := conn.Read(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(string(msg))
			}
		},
	}
}

// resolveItem matches ref against item IDs first, then names
// case-insensitively.
func resolveItem(list *listsync.List, ref string) (weeklist.Item, error) {
	items := list.Items()
	for _, item := range items {
		if item.ID == ref {
			return item, nil
		}
	}
	for _, item := range items {
		if strings.EqualFold(item.Name, ref) {
			return item, nil
		}
	}
	return weeklist.Item{}, fmt.Errorf("no item matches %q", ref)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
