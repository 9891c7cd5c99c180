package main

import (
	"fmt"
	"strconv"

	"github.com/maruel/mdblog/internal/admin"
	"github.com/spf13/cobra"
)

func newCategoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"categories"},
		Short:   "List, add or remove categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	format := formatTable
	list := &cobra.Command{
		Use:   "list",
		Short: "List categories and subcategories with their post counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			cats, err := admin.NewCategories(sess).List()
			if err != nil {
				return err
			}
			if done, err := encode(a.stdout, format, cats); done {
				return err
			}
			if len(cats) == 0 {
				_, _ = fmt.Fprintln(a.stdout, "No categories.")
				return nil
			}
			t := table{header: []string{"SLUG", "NAME", "POSTS", "REMOVABLE"}}
			for _, c := range cats {
				t.add(c.Slug, c.Name, strconv.Itoa(c.Posts), yesNo(c.Removable))
				for _, s := range c.Subcategories {
					t.add(c.Slug+"/"+s.Slug, "  "+s.Name, strconv.Itoa(s.Posts), yesNo(s.Removable))
				}
			}
			t.write(a.stdout)
			return nil
		},
	}
	list.Flags().Var(&format, "format", "output format: table, json or yaml")

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category; the slug is derived from the name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			c, err := admin.NewCategories(sess).AddCategory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			success(a.stdout, "Added category %s (%s)", c.Name, c.Slug)
			return nil
		},
	}
	rm := &cobra.Command{
		Use:   "rm <slug>",
		Short: "Remove an empty category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := admin.NewCategories(sess).RemoveCategory(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(a.stdout, "Removed category %s", args[0])
			return nil
		},
	}
	cmd.AddCommand(list, add, rm)
	return cmd
}

func newSubcategoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subcategory",
		Short: "Add or remove subcategories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	add := &cobra.Command{
		Use:   "add <category> <name>",
		Short: "Add a subcategory under an existing category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			s, err := admin.NewCategories(sess).AddSubcategory(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			success(a.stdout, "Added subcategory %s (%s/%s)", s.Name, args[0], s.Slug)
			return nil
		},
	}
	rm := &cobra.Command{
		Use:   "rm <category> <slug>",
		Short: "Remove an empty subcategory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := admin.NewCategories(sess).RemoveSubcategory(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			success(a.stdout, "Removed subcategory %s/%s", args[0], args[1])
			return nil
		},
	}
	cmd.AddCommand(add, rm)
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
