package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/hmstead/conductor/internal/orchestrator"
)

var (
	eventStarted   = color.New(color.FgCyan)
	eventCompleted = color.New(color.FgGreen)
	eventFailed    = color.New(color.FgRed)
	eventRetrying  = color.New(color.FgYellow)
	eventApproval  = color.New(color.FgMagenta)
)

// printEvents consumes orchestrator and engine events, printing one line
// per event. It returns when the channel closes.
func printEvents(events <-chan orchestrator.Event) {
	for ev := range events {
		printEvent(ev)
	}
}

func printEvent(ev orchestrator.Event) {
	subject := ev.TaskName
	if subject == "" {
		subject = ev.TaskID
	}
	if subject == "" {
		subject = ev.NodeID
	}
	if subject == "" {
		subject = ev.ApprovalID
	}
	if subject == "" {
		subject = ev.ExecutionID
	}

	ts := ev.Timestamp.Format("15:04:05.000")

	switch ev.Type {
	case orchestrator.EventTaskStarted:
		eventStarted.Printf("%s  %-22s %s", ts, ev.Type, subject)
		if ev.AgentID != "" {
			fmt.Printf(" → %s", ev.AgentID)
		}
		fmt.Println()
	case orchestrator.EventTaskCompleted, orchestrator.EventExecutionCompleted:
		eventCompleted.Printf("%s  %-22s %s\n", ts, ev.Type, subject)
	case orchestrator.EventTaskFailed, orchestrator.EventExecutionFailed, orchestrator.EventExecutionCancelled:
		eventFailed.Printf("%s  %-22s %s", ts, ev.Type, subject)
		if ev.Error != nil {
			fmt.Printf(": %v", ev.Error)
		} else if ev.Message != "" {
			fmt.Printf(": %s", ev.Message)
		}
		fmt.Println()
	case orchestrator.EventTaskRetrying:
		eventRetrying.Printf("%s  %-22s %s", ts, ev.Type, subject)
		if ev.Message != "" {
			fmt.Printf(": %s", ev.Message)
		}
		fmt.Println()
	case orchestrator.EventApprovalRequired, orchestrator.EventApprovalProcessed:
		eventApproval.Printf("%s  %-22s %s", ts, ev.Type, subject)
		if ev.Message != "" {
			fmt.Printf(": %s", ev.Message)
		}
		fmt.Println()
	default:
		fmt.Printf("%s  %-22s %s", ts, ev.Type, subject)
		if ev.Message != "" {
			fmt.Printf(": %s", ev.Message)
		}
		fmt.Println()
	}
}
