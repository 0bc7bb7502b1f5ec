/*
Package sandbox runs the script of a code node in an isolated JavaScript runtime.

Every call to Execute builds a fresh goja runtime and discards it on return, so
scripts never share state with each other or with the host. A script sees only
an explicit set of globals:

  - variables: a deep copy of the session variables
  - get / set (and the aliases getVariable / setVariable)
  - http (alias axios): a controlled client whose methods return Promises
  - console: routed to the structured logger
  - setTimeout, clearTimeout, setInterval, clearInterval
  - result: the slot a script assigns its output to

ECMAScript builtins such as JSON, Math, Date and Promise are available as usual.
There is no require, no filesystem and no process object.

The body runs inside an async function, so top-level await works. Execute
drives the runtime's event loop until the returned promise settles or the
node's deadline expires, at which point the runtime is interrupted. Timers still
pending when the promise settles are discarded.
*/
package sandbox
