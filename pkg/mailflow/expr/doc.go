/*
Package expr compiles and evaluates the boolean expressions used as edge
conditions in mailflow graphs.

# Syntax

	<expr> := <expr> 'or' <expr>
	        | <expr> 'and' <expr>
	        | 'not' <expr>
	        | '!' <expr>
	        | <value> <op> <value>
	        | <value>

	<op>    := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'
	<value> := 'string' | "string" | number | true | false | null | path

'or' binds loosest, then 'and', then the prefix negations.

# Paths

Identifiers are looked up in the vars map. Dotted identifiers walk nested
maps, so with

	vars := map[string]any{"context": map[string]any{"score": 7}}

the expression "context.score >= 5" is true. An identifier that resolves to
nothing is nil, so a bare "approved" is false until approved is set. On the
right of an operator an unknown bare word stands for itself: "env == prod"
compares env with the string "prod".

# Compiling once

Conditions are checked many times over a run, so graph loading compiles them
up front:

	cond, err := expr.Compile("status == 'approved' and retries < 3")
	if err != nil {
	    return err
	}
	ok := cond.Eval(vars)

Custom operators are registered at compile time with WithOperator.
*/
package expr
