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
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/engine"
)

func newReplayCmd(a *app) *cobra.Command {
	var traceback bool
	cmd := &cobra.Command{
		Use:   "replay <property> [hex-buffer]",
		Short: "Run saved failures, or one given buffer, through a property",
		Long: `Without a buffer, replay runs every entry of the property's primary
corpus once. With one, it runs exactly those bytes. A bucket whose
buffer no longer fails shows up with a status other than interesting.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.registry.Lookup(args[0])
			if err != nil {
				return err
			}
			r, err := engine.NewRunner(p.Test,
				engine.WithConfig(a.config),
				engine.WithLogger(a.logger.Slog().With("property", p.Name)),
			)
			if err != nil {
				return err
			}

			var buffers [][]byte
			if len(args) == 2 {
				buf, err := hex.DecodeString(args[1])
				if err != nil {
					return fmt.Errorf("decode buffer: %w", err)
				}
				buffers = [][]byte{buf}
			} else {
				db, err := a.openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				buffers, err = db.Fetch(cmd.Context(), []byte(p.Name))
				if err != nil {
					return err
				}
				if len(buffers) == 0 {
					return fmt.Errorf("no saved examples for %s", p.Name)
				}
			}

			stillFailing := 0
			for i, buf := range buffers {
				res, err := r.Replay(cmd.Context(), buf)
				if err != nil {
					return err
				}
				if res.Status == data.StatusInteresting {
					stillFailing++
				}
				renderResult(fmt.Sprintf("%s #%d", p.Name, i+1), res, traceback)
			}
			if p.ExpectFailure != (stillFailing > 0) {
				return errUnexpectedOutcome
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&traceback, "traceback", false, "print the stored traceback of failing runs")
	return cmd
}
