// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/cogwheel/internal/alias"
	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/lifecycle"
	"github.com/holomush/cogwheel/internal/module"
)

var _ = Describe("Command lifecycle", func() {
	var (
		ctx      context.Context
		registry *cog.Registry
		aliases  *alias.Table
		catalog  *module.Catalog
		manager  *lifecycle.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = cog.NewRegistry()
		aliases = alias.NewTable()
		catalog = module.NewCatalog()
		manager = lifecycle.New(registry, aliases, catalog)
	})

	AfterEach(func() {
		Expect(manager.Close(ctx)).To(Succeed())
	})

	Describe("registering and aliasing a command", func() {
		BeforeEach(func() {
			Expect(manager.RegisterCommand(ctx, "music", cog.NewCommand("play",
				func(context.Context, *cog.Call) (any, error) { return "playing", nil }))).To(Succeed())
		})

		It("resolves the command by its own name", func() {
			cmd, err := manager.Command(ctx, "play")
			Expect(err).NotTo(HaveOccurred())
			Expect(cmd.Name).To(Equal("play"))
			Expect(cmd.Cog).To(Equal("music"))
			Expect(aliases.Aliases("play")).To(Equal([]string{"play"}))
		})

		It("resolves a new alias to the same command", func() {
			Expect(manager.AddAlias(ctx, "play", "p", false)).To(Succeed())

			byAlias, err := manager.Command(ctx, "p")
			Expect(err).NotTo(HaveOccurred())
			byName, err := manager.Command(ctx, "play")
			Expect(err).NotTo(HaveOccurred())
			Expect(byAlias).To(BeIdenticalTo(byName))
		})

		It("refuses to remove the canonical name", func() {
			err := manager.RemoveAlias(ctx, "play")
			Expect(cog.HasCode(err, cog.CodeInvariantViolation)).To(BeTrue())

			_, err = manager.Command(ctx, "play")
			Expect(err).NotTo(HaveOccurred())
			Expect(aliases.Aliases("play")).To(Equal([]string{"play"}))
		})

		It("fails to resolve an alias that was never registered", func() {
			_, err := manager.Command(ctx, "nothing")
			Expect(cog.HasCode(err, cog.CodeNotFound)).To(BeTrue())
		})
	})

	Describe("concurrent dispatch and reload", func() {
		var (
			release chan struct{}
			entered chan struct{}
			imports atomic.Int32
		)

		BeforeEach(func() {
			release = make(chan struct{})
			entered = make(chan struct{}, 2)
			imports.Store(0)

			catalog.Register("music", func() *module.Definition {
				n := imports.Add(1)
				return &module.Definition{Cog: "music", Setup: func(r *module.Registrar) error {
					r.Command("play", func(ctx context.Context, _ *cog.Call) (any, error) {
						entered <- struct{}{}
						select {
						case <-release:
						case <-ctx.Done():
							return nil, ctx.Err()
						}
						return "played", nil
					})
					if n > 1 {
						r.Command("stop", func(context.Context, *cog.Call) (any, error) { return "stopped", nil })
					}
					return nil
				}}
			})
			Expect(manager.LoadModule(ctx, "music")).To(Succeed())
		})

		callPlay := func(wg *sync.WaitGroup, results []cog.Result, errs []error, i int) {
			defer GinkgoRecover()
			defer wg.Done()
			results[i], errs[i] = manager.CallCommand(ctx, "play", nil)
		}

		It("runs suspended calls concurrently", func() {
			var wg sync.WaitGroup
			results := make([]cog.Result, 2)
			errs := make([]error, 2)
			wg.Add(2)
			go callPlay(&wg, results, errs, 0)
			go callPlay(&wg, results, errs, 1)

			Eventually(entered).Should(Receive())
			Eventually(entered).Should(Receive())
			close(release)
			wg.Wait()

			for i := range results {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(results[i].OK()).To(BeTrue())
				Expect(results[i].Value).To(Equal("played"))
			}
		})

		It("holds a load until in-flight calls exit", func() {
			var wg sync.WaitGroup
			results := make([]cog.Result, 2)
			errs := make([]error, 2)
			wg.Add(2)
			go callPlay(&wg, results, errs, 0)
			go callPlay(&wg, results, errs, 1)
			Eventually(entered).Should(Receive())
			Eventually(entered).Should(Receive())

			loaded := make(chan error, 1)
			go func() { loaded <- manager.LoadModule(ctx, "music") }()

			Consistently(imports.Load, 100*time.Millisecond).Should(BeEquivalentTo(1))
			_, err := registry.Command("stop")
			Expect(err).To(HaveOccurred())

			close(release)
			wg.Wait()
			Eventually(loaded).Should(Receive(BeNil()))

			Expect(imports.Load()).To(BeEquivalentTo(2))
			_, err = registry.Command("stop")
			Expect(err).NotTo(HaveOccurred())
			for i := range results {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(results[i].OK()).To(BeTrue())
			}
		})
	})

	Describe("a failing handler", func() {
		BeforeEach(func() {
			catalog.Register("music", func() *module.Definition {
				return &module.Definition{Cog: "music", Setup: func(r *module.Registrar) error {
					r.Command("play", func(context.Context, *cog.Call) (any, error) {
						return nil, errors.New("needle skipped")
					})
					return nil
				}}
			})
			Expect(manager.LoadModule(ctx, "music")).To(Succeed())
		})

		It("is contained and disables its cog without removing it", func() {
			res, err := manager.CallCommand(ctx, "play", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(cog.OutcomeHandlerError))

			cogs, err := manager.Cogs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cogs).To(HaveLen(1))
			Expect(cogs[0].Name).To(Equal("music"))
			Expect(cogs[0].Loaded()).To(BeFalse())

			_, err = manager.Command(ctx, "play")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("a module that fails during import", func() {
		var broken atomic.Bool

		BeforeEach(func() {
			broken.Store(false)
			catalog.Register("music", func() *module.Definition {
				return &module.Definition{Cog: "music", Setup: func(r *module.Registrar) error {
					r.Command("play", func(context.Context, *cog.Call) (any, error) { return nil, nil })
					if broken.Load() {
						r.Command("pause", func(context.Context, *cog.Call) (any, error) { return nil, nil })
						return errors.New("syntax error")
					}
					return nil
				}}
			})
			Expect(manager.LoadModule(ctx, "music")).To(Succeed())
		})

		It("leaves the registry as it was and releases the gate", func() {
			broken.Store(true)
			err := manager.LoadModule(ctx, "music")
			Expect(cog.HasCode(err, cog.CodeModuleLoad)).To(BeTrue())

			_, err = registry.Command("pause")
			Expect(err).To(HaveOccurred())
			_, err = manager.Command(ctx, "play")
			Expect(err).NotTo(HaveOccurred())

			broken.Store(false)
			Eventually(func() error { return manager.LoadModule(ctx, "music") }).Should(Succeed())
		})
	})
})
