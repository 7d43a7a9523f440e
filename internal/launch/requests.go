package launch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/events"
	"github.com/firemods/firecraft-launcher/internal/javart"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/modpack"
)

// ModsPayload accompanies mods_list_response
type ModsPayload struct {
	Modality string
	Mods     []modpack.Mod
	Error    string
}

// ToggleRequest is the payload of mod_toggle_request
type ToggleRequest struct {
	Modality string
	FileName string
}

func (c *Controller) root(id string) string {
	return modality.RootPath(c.opts.BaseDir, modality.Resolve(id, modality.Options{}).Modality.ID)
}

// busyWith reports whether the live session uses modality id
func (c *Controller) busyWith(id string) bool {
	s := c.Snapshot()
	return s.Active() && s.Modality == id
}

// Repair wipes a modality's modpack so that the next launch reinstalls it
func (c *Controller) Repair(id string) error {
	err := c.repair(id)
	payload := events.ResultPayload{OK: err == nil}
	if err != nil {
		payload.Error = err.Error()
		c.deps.Bus.Log(events.LevelError, "Repair failed: "+err.Error())
	} else {
		c.deps.Bus.Log(events.LevelInfo, "Installation reset, the modpack will be downloaded on the next launch")
	}
	c.deps.Bus.Publish(events.RepairFinished, payload)
	return err
}

func (c *Controller) repair(id string) error {
	if c.busyWith(id) {
		return ErrBusy
	}
	c.logger.Info("repairing installation", zap.String("modality", id))
	return modpack.Repair(c.root(id), id)
}

// Mods lists a modality's mods and publishes them
func (c *Controller) Mods(id string) ([]modpack.Mod, error) {
	mods, err := modpack.ListMods(c.root(id))
	payload := ModsPayload{Modality: id, Mods: mods}
	if err != nil {
		payload.Error = err.Error()
	}
	c.deps.Bus.Publish(events.ModsListResponse, payload)
	return mods, err
}

// ToggleMod enables or disables one mod, then republishes the list
func (c *Controller) ToggleMod(id, fileName string) (modpack.Mod, error) {
	if c.busyWith(id) {
		return modpack.Mod{}, ErrBusy
	}
	mod, err := modpack.ToggleMod(c.root(id), fileName)
	if err != nil {
		c.deps.Bus.Log(events.LevelError, err.Error())
		return modpack.Mod{}, err
	}
	c.logger.Info("mod toggled", zap.String("modality", id), zap.String("file", mod.FileName), zap.Bool("enabled", mod.Enabled))
	c.Mods(id)
	return mod, nil
}

// InstallJava downloads a runtime of the given major version
func (c *Controller) InstallJava(ctx context.Context, major int) (javart.Runtime, error) {
	c.deps.Bus.Log(events.LevelInfo, fmt.Sprintf("Installing Java %d...", major))
	rt, err := c.deps.Java.Install(ctx, major, func(done, total int64, fraction float64) {
		if fraction >= 0 {
			c.progress(events.ProgressPayload{Type: "Downloading Java", Task: int(fraction * 100), Total: 100})
		}
	})
	c.progress(events.ProgressPayload{})
	payload := events.ResultPayload{OK: err == nil}
	if err != nil {
		payload.Error = err.Error()
		c.deps.Bus.Log(events.LevelError, "Java install failed: "+err.Error())
	} else {
		c.deps.Bus.Log(events.LevelInfo, fmt.Sprintf("Java %s installed", rt.Version))
	}
	c.deps.Bus.Publish(events.JavaInstallFinished, payload)
	return rt, err
}

// Serve answers the request events published by a front-end until ctx ends
func (c *Controller) Serve(ctx context.Context) error {
	ch, cancel := c.deps.Bus.Subscribe(64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.handle(ctx, e)
		}
	}
}

func (c *Controller) handle(ctx context.Context, e events.Event) {
	switch e.Name {
	case events.LaunchRequest:
		req, ok := e.Payload.(Request)
		if !ok {
			return
		}
		if err := c.Launch(ctx, req); err != nil {
			c.deps.Bus.Log(events.LevelError, err.Error())
		}
	case events.ForceCloseRequest:
		c.ForceClose(ctx)
	case events.RepairRequest:
		if id, ok := e.Payload.(string); ok {
			c.Repair(id)
		}
	case events.ModsListRequest:
		if id, ok := e.Payload.(string); ok {
			c.Mods(id)
		}
	case events.ModToggleRequest:
		if req, ok := e.Payload.(ToggleRequest); ok {
			c.ToggleMod(req.Modality, req.FileName)
		}
	case events.JavaInstall:
		if major, ok := e.Payload.(int); ok {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.InstallJava(ctx, major)
			}()
		}
	}
}
