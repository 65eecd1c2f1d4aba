package manager

import (
	"context"
	"time"

	"github.com/armature-dev/armature/pkg/plugin"
)

// healthLoop probes every Active instance at the configured interval.
// Plugins that do not implement the HealthChecker contract are skipped.
func (m *Manager) healthLoop() {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probeAll()
		}
	}
}

func (m *Manager) probeAll() {
	for _, inst := range m.liveInstances() {
		inst.mu.Lock()
		name := inst.descriptor.Name
		active := inst.status == StatusActive
		checker, probeable := inst.plugin.(plugin.HealthChecker)
		inst.mu.Unlock()

		if !active || !probeable {
			continue
		}
		m.probe(name, checker)
	}
}

// probe runs one health check and, on failure, restarts the plugin while
// the restart budget lasts. A plugin that exhausts its budget is stopped
// and left Loaded for the operator.
func (m *Manager) probe(name string, checker plugin.HealthChecker) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ProbeTimeout)
	err := checker.Healthy(ctx)
	cancel()

	if err == nil {
		m.metrics.HealthProbesTotal.WithLabelValues(name, "healthy").Inc()
		return
	}

	m.metrics.HealthProbesTotal.WithLabelValues(name, "unhealthy").Inc()
	m.log.WithField("plugin", name).Warnf("health probe failed: %v", err)
	m.publish(plugin.NewEvent(EventPluginUnhealthy, hostSource, map[string]any{
		"plugin": name, "error": err.Error(),
	}))

	m.mu.RLock()
	inst := m.instances[name]
	m.mu.RUnlock()
	if inst == nil {
		return
	}

	inst.mu.Lock()
	exhausted := inst.restarts >= m.cfg.RestartBudget
	if !exhausted {
		inst.restarts++
	}
	inst.mu.Unlock()

	if exhausted {
		m.log.WithField("plugin", name).Warn("restart budget exhausted, stopping plugin")
		if err := m.StopPlugin(m.ctx, name); err != nil {
			m.log.WithField("plugin", name).Warnf("stop after exhausted budget failed: %v", err)
		}
		return
	}

	m.metrics.PluginRestartsTotal.WithLabelValues(name).Inc()
	if err := m.StopPlugin(m.ctx, name); err != nil {
		m.log.WithField("plugin", name).Warnf("restart stop failed: %v", err)
	}
	if err := m.StartPlugin(m.ctx, name); err != nil {
		m.log.WithField("plugin", name).Warnf("restart start failed: %v", err)
		return
	}
	m.publish(plugin.NewEvent(EventPluginRestarted, hostSource, map[string]any{"plugin": name}))
}
