package loader

// Script is the per-script runtime side table: the same shape as Module
// minus field/struct-def tables (scripts declare no structs), plus the
// synthetic main Function and its translated parameter/return types
// (still generic: LoadScript substitutes the type arguments per call).
type Script struct {
	hash ScriptHash

	functionRefs            []FunctionCacheIndex
	functionInstantiations  []FunctionInstantiation
	singleSignatureTokenMap map[SignatureIndex]Type

	main          *Function
	parameterTys  []Type
	returnTys     []Type

	compiled *CompiledScript
}

func (s *Script) Hash() ScriptHash { return s.hash }
func (s *Script) Main() *Function  { return s.main }

// newScript builds the runtime side table for a deserialized, verified
// script, synthesizing its `main` Function: scope = Script(hash), locals
// = parameters ++ declared_locals, no native binding, empty Return on
// the Function itself -- the script's actual declared return types live
// in Script.returnTys for load_script to hand back.
func newScript(hash ScriptHash, compiled *CompiledScript, mc *ModuleCache) (*Script, *VMError) {
	locals := make(Signature, 0, len(compiled.Parameters)+len(compiled.Locals))
	locals = append(locals, compiled.Parameters...)
	locals = append(locals, compiled.Locals...)

	main := &Function{
		Name:           "main",
		Scope:          FunctionScope{IsScript: true, Script: hash},
		Parameters:     compiled.Parameters,
		Return:         nil,
		Locals:         locals,
		TypeParameters: compiled.TypeParameters,
		Code:           compiled.Code,
		Native:         nil,
	}

	s := &Script{
		hash:                    hash,
		singleSignatureTokenMap: make(map[SignatureIndex]Type),
		main:                    main,
		compiled:                compiled,
	}

	for _, fh := range compiled.FunctionHandles {
		idx, err := mc.resolveFunctionByName(fh.Name, fh.Owner)
		if err != nil {
			return nil, err
		}
		s.functionRefs = append(s.functionRefs, idx)
	}

	resolveStruct := func(idx SignatureIndex) (CachedStructIndex, *VMError) {
		if int(idx) < 0 || int(idx) >= len(compiled.StructHandles) {
			return 0, invariantViolation("struct handle %d out of range in script", idx)
		}
		h := compiled.StructHandles[idx]
		structIdx, _, err := mc.resolveStructByName(h.Name, h.Owner)
		return structIdx, err
	}

	paramTys := make([]Type, len(compiled.Parameters))
	for i, tok := range compiled.Parameters {
		ty, err := mc.translateToken(tok, resolveStruct)
		if err != nil {
			return nil, err
		}
		paramTys[i] = ty
	}
	retTys := make([]Type, len(compiled.Return))
	for i, tok := range compiled.Return {
		ty, err := mc.translateToken(tok, resolveStruct)
		if err != nil {
			return nil, err
		}
		retTys[i] = ty
	}
	s.parameterTys = paramTys
	s.returnTys = retTys

	for _, instr := range compiled.Code {
		if !instr.Op.carriesSignatureIndex() {
			continue
		}
		if _, seen := s.singleSignatureTokenMap[instr.SigIdx]; seen {
			continue
		}
		if int(instr.SigIdx) < 0 || int(instr.SigIdx) >= len(compiled.singleTokenSignatures) {
			return nil, invariantViolation("signature index %d out of range for script vector opcode", instr.SigIdx)
		}
		tok := compiled.singleTokenSignatures[instr.SigIdx]
		ty, err := mc.translateToken(tok, resolveStruct)
		if err != nil {
			return nil, err
		}
		s.singleSignatureTokenMap[instr.SigIdx] = ty
	}

	return s, nil
}
