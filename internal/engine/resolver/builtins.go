package resolver

import "strings"

var pythonBuiltins = map[string]bool{
	"abs": true, "aiter": true, "all": true, "anext": true, "any": true,
	"ascii": true, "bin": true, "bool": true, "breakpoint": true, "bytearray": true,
	"bytes": true, "callable": true, "chr": true, "classmethod": true, "compile": true,
	"complex": true, "delattr": true, "dict": true, "dir": true, "divmod": true,
	"enumerate": true, "eval": true, "exec": true, "filter": true, "float": true,
	"format": true, "frozenset": true, "getattr": true, "globals": true, "hasattr": true,
	"hash": true, "help": true, "hex": true, "id": true, "input": true,
	"int": true, "isinstance": true, "issubclass": true, "iter": true, "len": true,
	"list": true, "locals": true, "map": true, "max": true, "memoryview": true,
	"min": true, "next": true, "object": true, "oct": true, "open": true,
	"ord": true, "pow": true, "print": true, "property": true, "range": true,
	"repr": true, "reversed": true, "round": true, "set": true, "setattr": true,
	"slice": true, "sorted": true, "staticmethod": true, "str": true, "sum": true,
	"super": true, "tuple": true, "type": true, "vars": true, "zip": true,
	"__import__": true,
}

// Built-in exception types are also callable names.
var pythonBuiltinExceptions = map[string]bool{
	"BaseException": true, "Exception": true, "ArithmeticError": true, "AssertionError": true,
	"AttributeError": true, "EOFError": true, "ImportError": true, "IndexError": true,
	"KeyError": true, "KeyboardInterrupt": true, "LookupError": true, "MemoryError": true,
	"ModuleNotFoundError": true, "NameError": true, "NotImplementedError": true, "OSError": true,
	"OverflowError": true, "RecursionError": true, "RuntimeError": true, "StopIteration": true,
	"TimeoutError": true, "TypeError": true, "ValueError": true, "ZeroDivisionError": true,
	"FileNotFoundError": true, "PermissionError": true, "UnicodeError": true, "Warning": true,
	"DeprecationWarning": true, "UserWarning": true, "SystemExit": true, "GeneratorExit": true,
}

// Top-level standard library packages. Imports of these are external by nature.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "array": true, "ast": true, "asyncio": true,
	"base64": true, "bisect": true, "builtins": true, "calendar": true, "collections": true,
	"concurrent": true, "contextlib": true, "copy": true, "csv": true, "ctypes": true,
	"dataclasses": true, "datetime": true, "decimal": true, "difflib": true, "email": true,
	"enum": true, "errno": true, "fnmatch": true, "fractions": true, "functools": true,
	"gc": true, "getpass": true, "glob": true, "gzip": true, "hashlib": true,
	"heapq": true, "hmac": true, "html": true, "http": true, "importlib": true,
	"inspect": true, "io": true, "ipaddress": true, "itertools": true, "json": true,
	"logging": true, "math": true, "mimetypes": true, "multiprocessing": true, "operator": true,
	"os": true, "pathlib": true, "pickle": true, "platform": true, "pprint": true,
	"queue": true, "random": true, "re": true, "secrets": true, "select": true,
	"shlex": true, "shutil": true, "signal": true, "socket": true, "sqlite3": true,
	"ssl": true, "statistics": true, "string": true, "struct": true, "subprocess": true,
	"sys": true, "tempfile": true, "textwrap": true, "threading": true, "time": true,
	"timeit": true, "traceback": true, "types": true, "typing": true, "unittest": true,
	"urllib": true, "uuid": true, "warnings": true, "weakref": true, "xml": true,
	"zipfile": true, "zlib": true, "__future__": true,
}

func isBuiltin(name string) bool {
	return pythonBuiltins[name] || pythonBuiltinExceptions[name]
}

func isStdlibModule(module string) bool {
	root := module
	if i := strings.Index(root, "."); i >= 0 {
		root = root[:i]
	}
	return pythonStdlib[root]
}
