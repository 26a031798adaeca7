package utils

// PartVaultArt is the banner printed by the CLI on startup.
const PartVaultArt = `
 ____            _ __     __          _ _
|  _ \ __ _ _ __| |\ \   / /_ _ _   _| | |_
| |_) / _` + "`" + ` | '__| __\ \ / / _` + "`" + ` | | | | | __|
|  __/ (_| | |  | |_ \ V / (_| | |_| | | |_
|_|   \__,_|_|   \__| \_/ \__,_|\__,_|_|\__|
`
