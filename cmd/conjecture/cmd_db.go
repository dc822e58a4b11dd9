// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conjecture/pkg/ux"
	"github.com/AleutianAI/conjecture/services/conjecture/database"
)

// corpusKeys lists the primary, secondary and covering keys of property.
func corpusKeys(property string) []struct {
	name string
	key  []byte
} {
	key := []byte(property)
	return []struct {
		name string
		key  []byte
	}{
		{"primary", key},
		{"secondary", database.SecondaryKey(key)},
		{"coverage", database.CoveringKey(key)},
	}
}

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or clear the example database",
	}

	var verbose bool
	showCmd := &cobra.Command{
		Use:   "show <property>",
		Short: "Count, and optionally dump, a property's saved examples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ux.Title(args[0])
			for _, c := range corpusKeys(args[0]) {
				values, err := db.Fetch(cmd.Context(), c.key)
				if err != nil {
					return err
				}
				ux.KeyValues("CORPUS", []ux.Field{
					{Key: "corpus", Value: c.name},
					{Key: "entries", Value: strconv.Itoa(len(values))},
				})
				if verbose {
					for _, v := range values {
						ux.Info(ux.HexDump(v))
					}
				}
			}
			return nil
		},
	}
	showCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "dump every entry")

	clearCmd := &cobra.Command{
		Use:   "clear <property>",
		Short: "Delete every saved example of a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			removed := 0
			for _, c := range corpusKeys(args[0]) {
				values, err := db.Fetch(cmd.Context(), c.key)
				if err != nil {
					return err
				}
				for _, v := range values {
					if err := db.Delete(cmd.Context(), c.key, v); err != nil {
						return err
					}
					removed++
				}
			}
			ux.Success(fmt.Sprintf("removed %d examples of %s", removed, args[0]))
			return nil
		},
	}

	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}
