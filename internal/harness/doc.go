// Package harness runs scripted command sequences against a signal and checks
// the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: todo_list
//	description: "Insert, edit and remove list items"
//	initial: 0            # optional; omitted (or null) starts a list signal
//	capacity: 100         # optional history capacity
//	steps:
//	  - id: e1
//	    command: {entry: $root, direction: AFTER, value: "a"}
//	  - id: e2
//	    command:
//	      set: e1
//	      value: "b"
//	      conditions: [{id: e1, value: "a"}]
//	    expect_drop: condition_failed
//	  - wire: "not json"
//	    expect_error: MALFORMED_EVENT
//	assertions:
//	  - type: list_order
//	    list: $root
//	    order: [e1]
//	  - type: entry_value
//	    entry: e1
//	    value: "a"
//
// The string "$root" anywhere in a command, wire text or assertion stands for
// the ROOT entry id.
//
// # Assertion Types
//
//   - entry_value: an entry exists and holds value
//   - entry_missing: no entry with that id exists
//   - list_order: a list's children, head to tail
//   - entry_count: number of live entries, ROOT included
//   - root_value: ROOT holds value
//   - drop_count: how many commands were dropped for reason
//
// # Principles
//
// Every run also checks properties that hold for any command sequence: a
// fresh signal fed the same appended events reaches the same snapshot hash, a
// late subscriber's snapshot matches, and resuming from the first event id
// replays the rest in order.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/todo_list.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
