package hsm

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestStartDeliversEntryTopDown(t *testing.T) {
	var order []string

	top := &State{Name: "top"}
	child := &State{Name: "child"}

	top.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: TopState}
		case Entry:
			order = append(order, "top")
			return Return{Kind: Consumed}
		default:
			return Return{Kind: Consumed}
		}
	}
	child.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: Parent, Next: top}
		case Entry:
			order = append(order, "child")
			return Return{Kind: Consumed}
		default:
			return Return{Kind: Parent, Next: top}
		}
	}

	e := New(child, 8, 63, 0, zerolog.Nop())
	e.Start()

	if len(order) != 2 || order[0] != "top" || order[1] != "child" {
		t.Fatalf("entry order = %v, want [top child]", order)
	}
	if e.Current() != child {
		t.Fatalf("current = %v, want child", e.Current().Name)
	}
}

// S4 — HSM transition across disjoint trees.
func TestTransitionDisjointTrees(t *testing.T) {
	var order []string

	topA := &State{Name: "TopA"}
	subA := &State{Name: "SubA"}
	startA := &State{Name: "StartA"}
	topB := &State{Name: "TopB"}
	childB := &State{Name: "ChildB"}

	record := func(name string) func(kind string) {
		return func(kind string) { order = append(order, kind+"("+name+")") }
	}
	recTopA, recSubA, recStartA, recTopB, recChildB := record("TopA"), record("SubA"), record("StartA"), record("TopB"), record("ChildB")

	topA.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: TopState}
		case Entry:
			recTopA("Entry")
			return Return{Kind: Consumed}
		case Exit:
			recTopA("Exit")
			return Return{Kind: Consumed}
		}
		return Return{Kind: TopState}
	}
	subA.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: Parent, Next: topA}
		case Entry:
			recSubA("Entry")
			return Return{Kind: Consumed}
		case Exit:
			recSubA("Exit")
			return Return{Kind: Consumed}
		}
		return Return{Kind: Parent, Next: topA}
	}
	startA.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: Parent, Next: subA}
		case Entry:
			recStartA("Entry")
			return Return{Kind: Consumed}
		case Exit:
			recStartA("Exit")
			return Return{Kind: Consumed}
		case 1:
			return Return{Kind: Transition, Next: childB}
		}
		return Return{Kind: Parent, Next: subA}
	}
	topB.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: TopState}
		case Entry:
			recTopB("Entry")
			return Return{Kind: Consumed}
		case Exit:
			recTopB("Exit")
			return Return{Kind: Consumed}
		}
		return Return{Kind: TopState}
	}
	childB.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: Parent, Next: topB}
		case Entry:
			recChildB("Entry")
			return Return{Kind: Consumed}
		case Exit:
			recChildB("Exit")
			return Return{Kind: Consumed}
		}
		return Return{Kind: Parent, Next: topB}
	}

	e := New(startA, 8, 63, 0, zerolog.Nop())
	e.Dispatch(1, nil)

	want := []string{"Exit(StartA)", "Exit(SubA)", "Exit(TopA)", "Entry(TopB)", "Entry(ChildB)"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if e.Current() != childB {
		t.Fatalf("current = %v, want ChildB", e.Current().Name)
	}
}

// S5 — HSM transition to a descendant.
func TestTransitionToDescendant(t *testing.T) {
	var order []string

	start := &State{Name: "Start"}
	child := &State{Name: "Child"}
	grandchild := &State{Name: "Grandchild"}

	start.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: TopState}
		case Entry, Exit:
			return Return{Kind: Consumed}
		case 1:
			return Return{Kind: Transition, Next: grandchild}
		}
		return Return{Kind: TopState}
	}
	child.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: Parent, Next: start}
		case Entry:
			order = append(order, "Entry(Child)")
			return Return{Kind: Consumed}
		case Exit:
			order = append(order, "Exit(Child)")
			return Return{Kind: Consumed}
		}
		return Return{Kind: Parent, Next: start}
	}
	grandchild.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		switch msgID {
		case Walk:
			return Return{Kind: Parent, Next: child}
		case Entry:
			order = append(order, "Entry(Grandchild)")
			return Return{Kind: Consumed}
		case Exit:
			order = append(order, "Exit(Grandchild)")
			return Return{Kind: Consumed}
		}
		return Return{Kind: Parent, Next: child}
	}

	e := New(start, 8, 63, 0, zerolog.Nop())
	e.Dispatch(1, nil)

	want := []string{"Entry(Child)", "Entry(Grandchild)"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if e.Current() != grandchild {
		t.Fatalf("current = %v, want Grandchild", e.Current().Name)
	}
}

func TestStartIllegalWalkReturnAsserts(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on illegal Walk return")
		}
	}()
	bad := &State{Name: "bad"}
	bad.Fn = func(e *Engine, msgID MsgID, payload []byte) Return {
		return Return{Kind: Consumed} // illegal answer to Walk
	}
	e := New(bad, 8, 63, 0, zerolog.Nop())
	e.Start()
}
