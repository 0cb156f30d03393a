// Package restart implements the Restart Detector & Post-flight scan
// (component L, spec §4.11): after a plan finishes, it looks at what
// actually ran rather than what the recipe merely declared, and produces
// the plan_done event's restart summary and restart_actions list (§6).
package restart

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/outfit-dev/outfit/internal/plan"
)

// ActionType names what kind of restart an Action recommends.
type ActionType string

const (
	ActionServiceRestart ActionType = "service_restart"
	ActionShellRestart   ActionType = "shell_restart"
	ActionRebootRequired ActionType = "reboot_required"
)

// Severity ranks how strongly a restart Action should be surfaced.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
)

// Action is one entry in the plan_done event's restart_actions list (§6).
type Action struct {
	Type     ActionType
	Message  string
	Severity Severity
}

// kernelPackageSuffixes flags packages whose install implies a reboot
// (§4.11's "kernel-module/driver packages → reboot" heuristic).
var kernelPackageSuffixes = []string{"-dkms", "-modules", "-headers"}

// Detect scans results against the steps that produced them and returns the
// consolidated restart summary plus the ordered action list. Only steps
// recorded as success are considered — a failed or skipped service/package
// step never took effect, so it implies nothing about restarting.
func Detect(p *plan.Plan, results []plan.StepResult) (plan.RestartSummary, []Action) {
	byID := make(map[string]plan.Step, len(p.Steps))
	for _, s := range p.Steps {
		byID[s.ID] = s
	}

	var shell, reboot bool
	services := map[string]bool{}
	kernelPackages := map[string]bool{}
	var reasons []string
	var actions []Action

	for _, res := range results {
		if res.Status != plan.StatusSuccess {
			continue
		}
		step, ok := byID[res.StepID]
		if !ok {
			continue
		}

		switch step.Type {
		case plan.StepService:
			svc := serviceNameFromCommand(step.Command)
			if svc == "" || services[svc] {
				continue
			}
			services[svc] = true
			reasons = append(reasons, fmt.Sprintf("%s's service configuration changed", svc))
			actions = append(actions, Action{
				Type:     ActionServiceRestart,
				Message:  fmt.Sprintf("restart the %s service to pick up the change", svc),
				Severity: SeverityInfo,
			})

		case plan.StepPostInstall:
			if shell {
				continue
			}
			shell = true
			reasons = append(reasons, step.Label+" may have modified the current shell's environment")
			actions = append(actions, Action{
				Type:     ActionShellRestart,
				Message:  "restart your shell (or source its profile) to pick up environment changes",
				Severity: SeverityInfo,
			})

		case plan.StepPackages:
			for _, pkg := range kernelPackagesIn(step.Command) {
				if kernelPackages[pkg] {
					continue
				}
				kernelPackages[pkg] = true
				reboot = true
				reasons = append(reasons, pkg+" is a kernel module/driver package")
				actions = append(actions, Action{
					Type:     ActionRebootRequired,
					Message:  fmt.Sprintf("reboot to load %s", pkg),
					Severity: SeverityWarn,
				})
			}
		}
	}

	var serviceList []string
	for svc := range services {
		serviceList = append(serviceList, svc)
	}
	sort.Strings(serviceList)

	return plan.RestartSummary{
		ShellRestart:   shell,
		RebootRequired: reboot,
		ServiceRestart: serviceList,
		Reasons:        reasons,
	}, actions
}

// serviceCommandPatterns extracts the service name from each init system's
// command shape (mirrors plan.serviceCommand's four branches, component H).
var serviceCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^systemctl enable --now (\S+)$`),
	regexp.MustCompile(`^rc-service (\S+) start`),
	regexp.MustCompile(`^service (\S+) start$`),
	regexp.MustCompile(`^launchctl load -w \S*/([\w.-]+)\.plist$`),
}

func serviceNameFromCommand(cmd string) string {
	for _, re := range serviceCommandPatterns {
		if m := re.FindStringSubmatch(cmd); m != nil {
			return m[1]
		}
	}
	return ""
}

func kernelPackagesIn(cmd string) []string {
	var found []string
	for _, tok := range strings.Fields(cmd) {
		for _, suffix := range kernelPackageSuffixes {
			if strings.HasSuffix(tok, suffix) {
				found = append(found, tok)
				break
			}
		}
	}
	return found
}
