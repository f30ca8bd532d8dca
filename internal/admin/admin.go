// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package admin provides the built-in cog that manages the others: loading
// and reloading modules, toggling cogs, listing commands and editing aliases.
package admin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/lifecycle"
	"github.com/holomush/cogwheel/internal/module"
)

// ModuleName is the catalog name of the admin module.
const ModuleName = "admin"

// ReloadFunc observes the result of a reload the admin cog scheduled.
type ReloadFunc func(module string, err error)

// Register adds the admin module to catalog. The catalog may already be in
// use by mgr; the module is built when mgr loads it.
func Register(catalog *module.Catalog, mgr *lifecycle.Manager, onReload ReloadFunc) {
	catalog.Register(ModuleName, func() *module.Definition {
		return &module.Definition{
			Cog: ModuleName,
			Doc: "Manage modules, cogs and aliases.",
			Setup: func(r *module.Registrar) error {
				a := &admin{mgr: mgr, onReload: onReload}
				a.register(r)
				return nil
			},
		}
	})
}

type admin struct {
	mgr      *lifecycle.Manager
	onReload ReloadFunc
}

func (a *admin) register(r *module.Registrar) {
	r.Command("help", a.help,
		module.WithHelp("help [command] - list commands or describe one"),
		module.WithAliases("?"))
	r.Command("reload", a.reload,
		module.WithHelp("reload <module> - load or reload a module"),
		module.WithAliases("load"))
	r.Command("modules", a.modules,
		module.WithHelp("modules - list loaded modules"))
	r.Command("cogs", a.cogs,
		module.WithHelp("cogs - list cogs and whether they are enabled"))
	r.Command("commands", a.commands,
		module.WithHelp("commands [cog] [--all] - list commands, including disabled cogs with --all"))
	r.Command("enable", a.enable,
		module.WithHelp("enable <cog> - mark a cog enabled"))
	r.Command("disable", a.disable,
		module.WithHelp("disable <cog> - hide a cog's commands from listings"))
	r.Command("alias", a.alias,
		module.WithHelp("alias <command> <alias> [--force] - add an alias"))
	r.Command("unalias", a.unalias,
		module.WithHelp("unalias <alias> - remove an alias"))
}

// usage answers a malformed call. It is a reply, not a handler error, so the
// fault policy leaves the admin cog alone.
func (a *admin) usage(ctx context.Context, call *cog.Call) (any, error) {
	cmd, err := a.mgr.Command(ctx, call.Command)
	if err != nil {
		return cog.UserMessage(err), nil
	}
	return "Usage: " + cmd.Help, nil
}

func (a *admin) help(ctx context.Context, call *cog.Call) (any, error) {
	if len(call.Args) > 0 {
		cmd, err := a.mgr.Command(ctx, call.Args[0])
		if err != nil {
			return cog.UserMessage(err), nil
		}
		text := cmd.Help
		if text == "" {
			text = cmd.Name
		}
		return fmt.Sprintf("%s (cog %s, aliases: %s)", text, cmd.Cog, strings.Join(cmd.Aliases(), ", ")), nil
	}

	cmds, err := a.mgr.Commands(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		names[i] = cmd.Name
	}
	return "Commands: " + strings.Join(names, " "), nil
}

// reload schedules the load because the current dispatch holds the barrier
// the load has to wait for.
func (a *admin) reload(ctx context.Context, call *cog.Call) (any, error) {
	if len(call.Args) != 1 {
		return a.usage(ctx, call)
	}
	name := call.Args[0]
	done := a.mgr.ScheduleLoad(ctx, name)
	if a.onReload != nil {
		go func() { a.onReload(name, <-done) }()
	}
	return fmt.Sprintf("Reload of %s scheduled.", name), nil
}

func (a *admin) modules(ctx context.Context, _ *cog.Call) (any, error) {
	names, err := a.mgr.Modules(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return "No modules loaded.", nil
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		state, err := a.mgr.ModuleState(ctx, name)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%s: %s", name, state))
	}
	return strings.Join(lines, "\n"), nil
}

func (a *admin) cogs(ctx context.Context, _ *cog.Call) (any, error) {
	cogs, err := a.mgr.Cogs(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(cogs))
	for _, c := range cogs {
		state := "enabled"
		if !c.Loaded() {
			state = "disabled"
		}
		line := fmt.Sprintf("%s [%s] %d commands", c.Name, state, len(c.Commands()))
		if mod := c.Module(); mod != "" {
			line += " from " + mod
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (a *admin) commands(ctx context.Context, call *cog.Call) (any, error) {
	opts := lifecycle.ListOptions{IncludeDisabled: flag(call, "all")}

	var (
		cmds []*cog.Command
		err  error
	)
	if len(call.Args) > 0 {
		cmds, err = a.mgr.CogCommands(ctx, call.Args[0], opts)
	} else {
		cmds, err = a.mgr.Commands(ctx, opts)
	}
	if err != nil {
		return cog.UserMessage(err), nil
	}

	byCog := make(map[string][]string)
	for _, cmd := range cmds {
		byCog[cmd.Cog] = append(byCog[cmd.Cog], cmd.Name)
	}
	cogNames := make([]string, 0, len(byCog))
	for name := range byCog {
		cogNames = append(cogNames, name)
	}
	sort.Strings(cogNames)

	lines := make([]string, 0, len(cogNames))
	for _, name := range cogNames {
		lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(byCog[name], " ")))
	}
	if len(lines) == 0 {
		return "No commands.", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (a *admin) enable(ctx context.Context, call *cog.Call) (any, error) {
	if len(call.Args) != 1 {
		return a.usage(ctx, call)
	}
	if err := a.mgr.EnableCog(ctx, call.Args[0]); err != nil {
		return cog.UserMessage(err), nil
	}
	return fmt.Sprintf("Cog %s enabled.", call.Args[0]), nil
}

func (a *admin) disable(ctx context.Context, call *cog.Call) (any, error) {
	if len(call.Args) != 1 {
		return a.usage(ctx, call)
	}
	if call.Args[0] == ModuleName {
		return "The admin cog cannot be disabled.", nil
	}
	if err := a.mgr.DisableCog(ctx, call.Args[0]); err != nil {
		return cog.UserMessage(err), nil
	}
	return fmt.Sprintf("Cog %s disabled.", call.Args[0]), nil
}

func (a *admin) alias(ctx context.Context, call *cog.Call) (any, error) {
	if len(call.Args) != 2 {
		return a.usage(ctx, call)
	}
	command, name := call.Args[0], call.Args[1]
	if err := a.mgr.AddAlias(ctx, command, name, flag(call, "force")); err != nil {
		return cog.UserMessage(err), nil
	}
	return fmt.Sprintf("%s now runs %s.", name, command), nil
}

func (a *admin) unalias(ctx context.Context, call *cog.Call) (any, error) {
	if len(call.Args) != 1 {
		return a.usage(ctx, call)
	}
	if err := a.mgr.RemoveAlias(ctx, call.Args[0]); err != nil {
		return cog.UserMessage(err), nil
	}
	return fmt.Sprintf("Alias %s removed.", call.Args[0]), nil
}

func flag(call *cog.Call, name string) bool {
	v, ok := call.Options[name]
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	return !isBool || b
}
