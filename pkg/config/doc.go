/*
Package config loads the repofetch configuration file.

	            +-------------+
	            |   Config    |
	            |  source     |
	            |  credential |
	            |  fetch      |
	            +------+------+
	                   |
	     +-------------+-------------+
	     |             |             |
	+----+----+   +----+----+   +----+----+
	|  JSON   |   |  YAML   |   |   HCL   |
	| Parser  |   | Parser  |   | Parser  |
	+---------+   +---------+   +----+----+
	                                 |
	                           env.* variables

🎯 Purpose:
- Picks a parser by file extension
- Rejects unknown fields in every format
- Validates the source selection and fetch policy
- Converts the file into a source.Source, credentials and fetcher options

🔄 Flow:
1. LoadConfig reads the file and asks the registered parsers which one applies
2. The parser decodes into Config
3. Validate checks that exactly one of url or provider+repo is given
4. The CLI calls Source.Build, CredentialList and FetchOptions

🤝 Interfaces:
- Parser: format-specific decoding, registered in init

🔍 Example:

	source {
	  provider = "github"
	  repo     = "walteh/repofetch"
	  branch   = "main"
	}

	credential {
	  host     = "github.com"
	  password = env.GITHUB_TOKEN
	}

	fetch {
	  follow_indirections = true
	  ancestor_errors     = "abort"
	}
*/
package config
