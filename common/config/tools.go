package config

// DefaultConverterBin runs the cascadio STEP importer through the system Python
const DefaultConverterBin = "python3"

const cascadioScript = "import sys; import cascadio; cascadio.step_to_glb(sys.argv[1], sys.argv[2])"

// DefaultConverterArgs returns the argument template for DefaultConverterBin
func DefaultConverterArgs() []string {
	return []string{"-c", cascadioScript, "{input}", "{output}"}
}
