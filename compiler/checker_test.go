package compiler

import (
	"errors"
	"strings"
	"testing"
)

func checkErrors(t *testing.T, src string) []string {
	t.Helper()
	_, err := Generate([]SourceFile{{Name: "demo.tn", Text: src}}, nil)
	if err == nil {
		return nil
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Generate: %v, want *Error", err)
	}
	return cerr.Messages()
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unresolved call", `fun f(): Int = g()`, "unresolved reference: g"},
		{"unresolved type", `fun f(x: Widget) = 1`, "unresolved reference: Widget"},
		{"unresolved import", "import nowhere.*\nfun f() = 1", "unresolved reference: nowhere"},
		{"result mismatch", `fun f(): Int = "no"`, "inferred type is String but Int was expected"},
		{"no implicit widening", `fun f(x: Int): Long = x`, "inferred type is Int but Long was expected"},
		{"val reassigned", "fun f() {\n    val x = 1\n    x = 2\n}", "val x cannot be reassigned"},
		{"final property", "class P(val x: Int) {\n    fun set() {\n        x = 2\n    }\n}", "val x cannot be reassigned"},
		{"missing return", "fun f(x: Int): Int {\n    if (x > 0) return 1\n}", "missing return in function f returning Int"},
		{"if without else", `fun f(b: Boolean): Int = if (b) 1`, "if must have an else branch"},
		{"try in expression", "fun f(s: String): Int {\n    val n = 1 + try { s.toInt() } catch (e: Exception) { 0 }\n    return n\n}", "try cannot be used inside a larger expression"},
		{"condition type", "fun f(x: Int) {\n    if (x) println(\"a\")\n}", "inferred type is Int but Boolean was expected"},
		{"break outside loop", "fun f() {\n    break\n}", "only allowed inside a loop"},
		{"catch non-exception", "fun f() {\n    try {\n        println(\"a\")\n    } catch (e: String) {\n    }\n}", "catch parameter must be an Exception, not String"},
		{"for over Int", "fun f() {\n    for (c in 5) println(c)\n}", "for loop requires a String or an integer range, not Int"},
		{"recursive inference", `fun f() = f()`, "cannot infer the type of f recursively"},
		{"this outside class", `fun f() = this`, "this is not defined in this context"},
		{"inapplicable arguments", "fun f(x: Int) = x\nfun g() = f(\"a\")", "cannot be called with arguments (String)"},
		{"conflicting overloads", "fun f(x: Int) = 1\nfun f(y: Int) = 2", "conflicting overloads"},
		{"reserved class name", "class Namespace", "class name Namespace is reserved"},
		{"class redeclared", "class A\nclass A", "redeclaration: class A"},
		{"final String", "class S : String()", "cannot inherit from final class String"},
		{"cyclic inheritance", "class A : B()\nclass B : A()", "cyclic inheritance involving"},
		{"hidden property", "open class A(val x: Int)\nclass B(val x: Int) : A(x)", "property x hides a property of demo.A"},
		{"missing override", "open class A {\n    open fun f(): Int = 1\n}\nclass B : A() {\n    fun f(): Int = 2\n}", "f hides member of supertype demo.A and needs the override modifier"},
		{"overrides nothing", "class A {\n    override fun g(): Int = 1\n}", "g overrides nothing"},
		{"override result", "open class A {\n    open fun f(): Int = 1\n}\nclass B : A() {\n    override fun f(): Long = 2L\n}", "return type of f must be Int as in the overridden member"},
		{"top-level override", `override fun f() = 1`, "modifier override is not applicable to a top-level function"},
		{"unit parameter", `fun f(x: Unit) = 1`, "parameter x cannot have type Unit"},
		{"class as value", "class A\nfun f() = A", "class A cannot be used as a value"},
		{"operator types", `fun f(b: Boolean) = b * 2`, "operator * cannot be applied to Boolean and Int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := checkErrors(t, "package demo\n\n"+tt.src+"\n")
			if len(msgs) == 0 {
				t.Fatalf("no errors, want %q", tt.want)
			}
			for _, m := range msgs {
				if strings.Contains(m, tt.want) {
					return
				}
			}
			t.Errorf("errors = %q, want one containing %q", msgs, tt.want)
		})
	}
}

func TestCheckReportsAllErrors(t *testing.T) {
	msgs := checkErrors(t, `package demo

fun a(): Int = "x"
fun b() = missing
`)
	if len(msgs) != 2 {
		t.Fatalf("errors = %q, want 2", msgs)
	}
	if !strings.HasPrefix(msgs[0], "demo.tn:3:") {
		t.Errorf("first error = %q, want it at demo.tn:3", msgs[0])
	}
	if !strings.HasPrefix(msgs[1], "demo.tn:4:") {
		t.Errorf("second error = %q, want it at demo.tn:4", msgs[1])
	}
}

func TestCheckUnresolvedResultType(t *testing.T) {
	msgs := checkErrors(t, `package demo

fun f(): Bogus {
    return 1
}

fun g(): Bogus = 1
`)
	if len(msgs) != 2 {
		t.Fatalf("errors = %q, want one per unresolved result type", msgs)
	}
	for _, m := range msgs {
		if !strings.Contains(m, "unresolved reference: Bogus") {
			t.Errorf("error = %q, want unresolved reference: Bogus", m)
		}
	}
}

func TestCheckAcceptsValidPrograms(t *testing.T) {
	srcs := map[string]string{
		"forward reference": `package demo

fun a() = b() + 1
fun b(): Int = 41
`,
		"nested loops": `package demo

fun grid(n: Int): Int {
    var total = 0
    for (i in 0 until n) {
        for (j in 0 until n) {
            if (j > i) break
            total += j
        }
    }
    return total
}
`,
		"property inference": `package demo

class Box(val size: Int) {
    var twice = size * 2
    fun grow() {
        twice += 1
    }
}
`,
		"explicit imports": `package demo

import tern.lang.Exception

fun f(s: String): Int = try {
    s.toInt()
} catch (e: Exception) {
    -1
}
`,
	}
	for name, src := range srcs {
		t.Run(name, func(t *testing.T) {
			if msgs := checkErrors(t, src); len(msgs) > 0 {
				t.Errorf("unexpected errors:\n%s", strings.Join(msgs, "\n"))
			}
		})
	}
}
